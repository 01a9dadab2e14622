// Package mocks provides test doubles for bundlekit collaborators.
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/bundlekit/manifest"
)

// Batch is one recorded executor call.
type Batch struct {
	Kind    string
	Actions map[string]manifest.LifecycleAction
}

// RecordingExecutor records every install and uninstall batch.
type RecordingExecutor struct {
	mu      sync.Mutex
	batches []Batch

	InstallErr   error
	UninstallErr error
}

// NewRecordingExecutor creates an empty RecordingExecutor.
func NewRecordingExecutor() *RecordingExecutor {
	return &RecordingExecutor{}
}

// ExecuteInstall records the install batch.
func (r *RecordingExecutor) ExecuteInstall(ctx context.Context, actions map[string]manifest.LifecycleAction) error {
	r.record("install", actions)
	return r.InstallErr
}

// ExecuteUninstall records the uninstall batch.
func (r *RecordingExecutor) ExecuteUninstall(ctx context.Context, actions map[string]manifest.LifecycleAction) error {
	r.record("uninstall", actions)
	return r.UninstallErr
}

func (r *RecordingExecutor) record(kind string, actions map[string]manifest.LifecycleAction) {
	cp := make(map[string]manifest.LifecycleAction, len(actions))
	for k, v := range actions {
		cp[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, Batch{Kind: kind, Actions: cp})
}

// Batches returns all recorded batches in call order.
func (r *RecordingExecutor) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

// Calls returns how many batches of kind were recorded.
func (r *RecordingExecutor) Calls(kind string) int {
	n := 0
	for _, b := range r.Batches() {
		if b.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent batch of kind, or nil.
func (r *RecordingExecutor) Last(kind string) map[string]manifest.LifecycleAction {
	batches := r.Batches()
	for i := len(batches) - 1; i >= 0; i-- {
		if batches[i].Kind == kind {
			return batches[i].Actions
		}
	}
	return nil
}
