package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/registry"
	"github.com/BaSui01/bundlekit/types"
)

// Phase names used in errors and logs.
const (
	PhaseInstall   = "install"
	PhaseUninstall = "uninstall"
)

// Dispatcher runs staged lifecycle actions through registry instances.
type Dispatcher struct {
	reg    registry.TypeRegistry
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher resolving action classes in reg.
func NewDispatcher(reg registry.TypeRegistry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		reg:    reg,
		logger: logger.With(zap.String("component", "lifecycle_dispatcher")),
	}
}

// ExecuteInstall calls Install on every staged action, in identifier order.
func (d *Dispatcher) ExecuteInstall(ctx context.Context, actions map[string]manifest.LifecycleAction) error {
	return d.execute(ctx, PhaseInstall, actions)
}

// ExecuteUninstall calls Uninstall on every staged action, in identifier
// order.
func (d *Dispatcher) ExecuteUninstall(ctx context.Context, actions map[string]manifest.LifecycleAction) error {
	return d.execute(ctx, PhaseUninstall, actions)
}

func (d *Dispatcher) execute(ctx context.Context, phase string, actions map[string]manifest.LifecycleAction) error {
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return types.NewLifecycleError(phase, err)
		}
		action := actions[id]
		hook, err := d.hook(action.ClassName)
		if err != nil {
			return types.NewLifecycleError(phase, fmt.Errorf("%s: %w", id, err))
		}

		if phase == PhaseInstall {
			err = hook.Install(ctx, id)
		} else {
			err = hook.Uninstall(ctx, id)
		}
		if err != nil {
			return types.NewLifecycleError(phase, fmt.Errorf("%s: %w", id, err))
		}
		d.logger.Info("lifecycle action executed",
			zap.String("phase", phase),
			zap.String("identifier", id),
			zap.String("class", action.ClassName))
	}
	return nil
}

func (d *Dispatcher) hook(class string) (Hook, error) {
	if d.reg == nil {
		return nil, fmt.Errorf("%w: %s", registry.ErrTypeNotFound, class)
	}
	v, err := d.reg.Instantiate(class)
	if err != nil {
		return nil, err
	}
	hook, ok := v.(Hook)
	if !ok {
		return nil, fmt.Errorf("%s does not implement lifecycle hooks (got %T)", class, v)
	}
	return hook, nil
}
