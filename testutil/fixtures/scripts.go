package fixtures

import "fmt"

// ActionScript returns a Lua lifecycle-action source declaring
// namespace.class. install and uninstall append to the global `calls`
// table so tests can observe them through a shared state.
func ActionScript(namespace, class string) string {
	return fmt.Sprintf(`-- namespace %s;
-- class %s
function install(pkg)
  record("install:" .. pkg)
end

function uninstall(pkg)
  record("uninstall:" .. pkg)
end
`, namespace, class)
}

// PluginScript returns a Lua plugin class source.
func PluginScript(namespace, class string) string {
	return fmt.Sprintf(`-- namespace %s;
-- class %s
name = %q
`, namespace, class, class)
}
