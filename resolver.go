package extensionsystem

import (
	"fmt"
	"strings"
)

// provides reports whether this spec satisfies a dependency on name/version:
// the names match and version falls inside [compatVersion, version]. An empty
// requested version means "any".
func (spec *PluginSpec) provides(name, version string) bool {
	if spec.name != name {
		return false
	}
	if version == "" {
		return true
	}
	return CompareVersions(version, spec.version) <= 0 &&
		CompareVersions(version, spec.compatVersion) >= 0
}

// resolveDependencies binds the spec's declared dependencies to their
// PluginSpecs out of specs and advances Read -> Resolved. Unresolved Optional
// and Test dependencies are silently omitted; unresolved Required
// dependencies put the spec in error.
func (spec *PluginSpec) resolveDependencies(specs []*PluginSpec) bool {
	if spec.HasError() {
		return false
	}
	if spec.state != StateRead {
		if spec.state == StateResolved {
			return true
		}
		spec.reportError(tr("Resolving dependencies failed because state != Read"))
		return false
	}

	if CompareVersions(spec.compatVersion, spec.version) > 0 {
		spec.reportError(tr("Compatibility version \"%s\" is greater than version \"%s\"",
			spec.compatVersion, spec.version))
		return false
	}

	resolved := make(map[PluginDependency]*PluginSpec)
	var missing []string
	for _, dep := range spec.dependencies {
		var found *PluginSpec
		for _, candidate := range specs {
			if candidate.provides(dep.Name, dep.Version) {
				found = candidate
				break
			}
		}
		if found == nil {
			if dep.Type == DependencyRequired {
				missing = append(missing, dep.String())
			}
			continue
		}
		resolved[dep] = found
	}

	if len(missing) > 0 {
		spec.reportError(tr("Could not resolve dependency: %s", strings.Join(missing, ", ")))
		return false
	}

	spec.dependencySpecs = resolved
	spec.state = StateResolved
	return true
}

// resolvePlugins binds the dependency graph across all known specs.
// Effectively disabled specs stay at Read; the queue schedules them anyway
// and every later phase skips them by state.
func (m *PluginManager) resolvePlugins() {
	for _, spec := range m.specs {
		if spec.HasError() || !spec.IsEffectivelyEnabled() {
			continue
		}
		if !spec.resolveDependencies(m.specs) {
			m.logger.Error("plugin dependency resolution failed",
				m.pluginAttr(spec),
				errAttr(spec.errorString))
		}
	}
}

// LoadQueue computes the linear order in which lifecycle transitions are
// applied: every plugin appears after all of its Required and Optional
// dependencies. Shutdown uses the reverse order. Dependency cycles mark the
// first spec traversed on the cycle with an error naming the full cycle path.
func (m *PluginManager) LoadQueue() []*PluginSpec {
	var queue []*PluginSpec
	for _, spec := range m.specs {
		var path []*PluginSpec
		enqueue(spec, &queue, path)
	}
	return queue
}

// enqueue performs the depth-first post-order walk behind LoadQueue. path
// holds the current recursion stack for cycle detection. A false return means
// the spec could not be scheduled and carries an error.
func enqueue(spec *PluginSpec, queue *[]*PluginSpec, path []*PluginSpec) bool {
	if containsSpec(*queue, spec) {
		return true
	}

	if index := indexOfSpec(path, spec); index >= 0 {
		var b strings.Builder
		b.WriteString(tr("Circular dependency detected:"))
		b.WriteByte('\n')
		for i := index; i < len(path); i++ {
			onCycle := path[i]
			b.WriteString(fmt.Sprintf(tr("%s (%s) depends on"), onCycle.name, onCycle.version))
			b.WriteByte('\n')
		}
		b.WriteString(fmt.Sprintf(tr("%s (%s)"), spec.name, spec.version))
		spec.reportError(b.String())
		return false
	}
	path = append(path, spec)

	// Not resolved yet: schedule it anyway, downstream phases skip it by state.
	if spec.state == StateInvalid || spec.state == StateRead {
		*queue = append(*queue, spec)
		return true
	}

	for _, dep := range spec.dependencies {
		// Test dependencies are bound when present but take no part in
		// load ordering.
		if dep.Type == DependencyTest {
			continue
		}
		depSpec, ok := spec.dependencySpecs[dep]
		if !ok {
			continue
		}
		if !enqueue(depSpec, queue, path) {
			spec.reportError(tr("Cannot load plugin because dependency failed to load: %s (%s)\nReason: %s",
				depSpec.name, depSpec.version, depSpec.errorString))
			// Still scheduled; downstream phases skip it because of the error.
			if !containsSpec(*queue, spec) {
				*queue = append(*queue, spec)
			}
			return false
		}
	}

	*queue = append(*queue, spec)
	return true
}

func containsSpec(specs []*PluginSpec, spec *PluginSpec) bool {
	return indexOfSpec(specs, spec) >= 0
}

func indexOfSpec(specs []*PluginSpec, spec *PluginSpec) int {
	for i, s := range specs {
		if s == spec {
			return i
		}
	}
	return -1
}
