package extensionsystem

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgelight/extensionsystem/plugin"
)

// Descriptor document keys.
const (
	keyIID              = "IID"
	keyMetaData         = "MetaData"
	keyName             = "Name"
	keyVersion          = "Version"
	keyCompatVersion    = "CompatVersion"
	keyRequired         = "Required"
	keyExperimental     = "Experimental"
	keyDisabledByDflt   = "DisabledByDefault"
	keyVendor           = "Vendor"
	keyCopyright        = "Copyright"
	keyLicense          = "License"
	keyDescription      = "Description"
	keyLongDescription  = "LongDescription"
	keyURL              = "Url"
	keyCategory         = "Category"
	keyRevision         = "Revision"
	keyPlatform         = "Platform"
	keyDependencies     = "Dependencies"
	keyDependencyName   = "Name"
	keyDependencyVer    = "Version"
	keyDependencyType   = "Type"
	depTypeRequired     = "required"
	depTypeOptional     = "optional"
	depTypeTest         = "test"
	keyArguments        = "Arguments"
	keyArgumentName     = "Name"
	keyArgumentParam    = "Parameter"
	keyArgumentDescrip  = "Description"
)

func msgValueMissing(key string) string {
	return tr("\"%s\" is missing", key)
}

func msgValueIsNotAString(key string) string {
	return tr("Value for key \"%s\" is not a string", key)
}

func msgValueIsNotABool(key string) string {
	return tr("Value for key \"%s\" is not a bool", key)
}

func msgValueIsNotAObjectArray(key string) string {
	return tr("Value for key \"%s\" is not an array of objects", key)
}

func msgValueIsNotAMultilineString(key string) string {
	return tr("Value for key \"%s\" is not a string and not an array of strings", key)
}

func msgInvalidFormat(key, content string) string {
	return tr("Value \"%s\" for key \"%s\" has invalid format", content, key)
}

// read populates the spec from the descriptor file at path. The spec is reset
// first, so re-reading yields identical results. A descriptor whose IID does
// not match iid is not an error; read returns ErrNotAPlugin and leaves the
// spec error-free so discovery can skip the file silently.
func (spec *PluginSpec) read(path, iid string, factory plugin.LoaderFactory, platformName string) error {
	spec.reset()
	spec.platformName = platformName

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	spec.filePath = abs
	spec.location = filepath.Dir(abs)

	spec.loader = factory(abs)
	doc, err := spec.loader.Metadata()
	if err != nil {
		message := tr("Cannot read plugin descriptor: %s", err.Error())
		spec.reportError(message)
		return &Error{Op: "PluginSpec.Read", Kind: KindMetadata, Err: err}
	}

	if err := spec.readMetaData(doc, iid); err != nil {
		return err
	}

	spec.state = StateRead
	return nil
}

// metadataError records a validation failure on the spec and wraps it for the
// caller.
func (spec *PluginSpec) metadataError(message string) error {
	spec.reportError(message)
	return &Error{Op: "PluginSpec.Read", Kind: KindMetadata, Err: errors.New(message)}
}

// readMetaData validates the descriptor document and fills in the spec's
// fields. Validation order matches the documented descriptor contract; the
// first failing rule wins.
func (spec *PluginSpec) readMetaData(doc map[string]json.RawMessage, iid string) error {
	raw, ok := doc[keyIID]
	if !ok {
		return ErrNotAPlugin
	}
	docIID, ok := asString(raw)
	if !ok {
		return ErrNotAPlugin
	}
	if docIID != iid {
		return ErrNotAPlugin
	}

	raw, ok = doc[keyMetaData]
	if !ok {
		return spec.metadataError(tr("Plugin meta data not found"))
	}
	metaData, ok := asObject(raw)
	if !ok {
		return spec.metadataError(tr("Plugin meta data not found"))
	}
	spec.metaData = metaData

	raw, ok = metaData[keyName]
	if !ok {
		return spec.metadataError(msgValueMissing(keyName))
	}
	if spec.name, ok = asString(raw); !ok {
		return spec.metadataError(msgValueIsNotAString(keyName))
	}

	raw, ok = metaData[keyVersion]
	if !ok {
		return spec.metadataError(msgValueMissing(keyVersion))
	}
	if spec.version, ok = asString(raw); !ok {
		return spec.metadataError(msgValueIsNotAString(keyVersion))
	}
	if !IsValidVersion(spec.version) {
		return spec.metadataError(msgInvalidFormat(keyVersion, spec.version))
	}

	spec.compatVersion = spec.version
	if raw, ok = metaData[keyCompatVersion]; ok {
		if spec.compatVersion, ok = asString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyCompatVersion))
		}
		if !IsValidVersion(spec.compatVersion) {
			return spec.metadataError(msgInvalidFormat(keyCompatVersion, spec.compatVersion))
		}
	}

	if raw, ok = metaData[keyRequired]; ok {
		if spec.required, ok = asBool(raw); !ok {
			return spec.metadataError(msgValueIsNotABool(keyRequired))
		}
	}

	if raw, ok = metaData[keyExperimental]; ok {
		if spec.experimental, ok = asBool(raw); !ok {
			return spec.metadataError(msgValueIsNotABool(keyExperimental))
		}
	}

	if raw, ok = metaData[keyDisabledByDflt]; ok {
		disabled, valid := asBool(raw)
		if !valid {
			return spec.metadataError(msgValueIsNotABool(keyDisabledByDflt))
		}
		spec.enabledByDefault = !disabled
	}
	if spec.experimental {
		spec.enabledByDefault = false
	}
	spec.enabledBySettings = spec.enabledByDefault

	if raw, ok = metaData[keyVendor]; ok {
		if spec.vendor, ok = asString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyVendor))
		}
	}

	if raw, ok = metaData[keyCopyright]; ok {
		if spec.copyright, ok = asString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyCopyright))
		}
	}

	if raw, ok = metaData[keyDescription]; ok {
		if spec.description, ok = asMultilineString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyDescription))
		}
	}

	if raw, ok = metaData[keyLongDescription]; ok {
		if spec.longDescription, ok = asMultilineString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyLongDescription))
		}
	}

	if raw, ok = metaData[keyURL]; ok {
		if spec.url, ok = asString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyURL))
		}
	}

	if raw, ok = metaData[keyCategory]; ok {
		if spec.category, ok = asString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyCategory))
		}
	}

	if raw, ok = metaData[keyRevision]; ok {
		if spec.revision, ok = asString(raw); !ok {
			return spec.metadataError(msgValueIsNotAString(keyRevision))
		}
	}

	if raw, ok = metaData[keyLicense]; ok {
		if spec.license, ok = asMultilineString(raw); !ok {
			return spec.metadataError(msgValueIsNotAMultilineString(keyLicense))
		}
	}

	if raw, ok = metaData[keyPlatform]; ok {
		pattern, valid := asString(raw)
		if !valid {
			return spec.metadataError(msgValueIsNotAString(keyPlatform))
		}
		pattern = strings.TrimSpace(pattern)
		if pattern != "" {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return spec.metadataError(tr("Invalid platform specification \"%s\": %s", pattern, err.Error()))
			}
			spec.platformPattern = re
		}
	}

	if raw, ok = metaData[keyDependencies]; ok {
		if err := spec.readDependencies(raw); err != nil {
			return err
		}
	}

	if raw, ok = metaData[keyArguments]; ok {
		if err := spec.readArgumentDescriptions(raw); err != nil {
			return err
		}
	}

	return nil
}

func (spec *PluginSpec) readDependencies(raw json.RawMessage) error {
	entries, ok := asArray(raw)
	if !ok {
		return spec.metadataError(msgValueIsNotAObjectArray(keyDependencies))
	}
	for _, entry := range entries {
		obj, ok := asObject(entry)
		if !ok {
			return spec.metadataError(msgValueIsNotAObjectArray(keyDependencies))
		}

		var dep PluginDependency

		raw, ok := obj[keyDependencyName]
		if !ok {
			return spec.metadataError(tr("Dependency: %s", msgValueMissing(keyDependencyName)))
		}
		if dep.Name, ok = asString(raw); !ok {
			return spec.metadataError(tr("Dependency: %s", msgValueIsNotAString(keyDependencyName)))
		}

		if raw, ok = obj[keyDependencyVer]; ok {
			if dep.Version, ok = asString(raw); !ok {
				return spec.metadataError(tr("Dependency: %s", msgValueIsNotAString(keyDependencyVer)))
			}
			// An empty version means "any".
			if dep.Version != "" && !IsValidVersion(dep.Version) {
				return spec.metadataError(tr("Dependency: %s", msgInvalidFormat(keyDependencyVer, dep.Version)))
			}
		}

		dep.Type = DependencyRequired
		if raw, ok = obj[keyDependencyType]; ok {
			typeValue, valid := asString(raw)
			if !valid {
				return spec.metadataError(tr("Dependency: %s", msgValueIsNotAString(keyDependencyType)))
			}
			switch strings.ToLower(typeValue) {
			case depTypeRequired:
				dep.Type = DependencyRequired
			case depTypeOptional:
				dep.Type = DependencyOptional
			case depTypeTest:
				dep.Type = DependencyTest
			default:
				return spec.metadataError(tr("Dependency: \"%s\" must be \"%s\" or \"%s\" (is \"%s\").",
					keyDependencyType, depTypeRequired, depTypeOptional, typeValue))
			}
		}

		spec.dependencies = append(spec.dependencies, dep)
	}
	return nil
}

func (spec *PluginSpec) readArgumentDescriptions(raw json.RawMessage) error {
	entries, ok := asArray(raw)
	if !ok {
		return spec.metadataError(msgValueIsNotAObjectArray(keyArguments))
	}
	for _, entry := range entries {
		obj, ok := asObject(entry)
		if !ok {
			return spec.metadataError(msgValueIsNotAObjectArray(keyArguments))
		}

		var arg PluginArgumentDescription

		raw, ok := obj[keyArgumentName]
		if !ok {
			return spec.metadataError(tr("Argument: %s", msgValueMissing(keyArgumentName)))
		}
		if arg.Name, ok = asString(raw); !ok {
			return spec.metadataError(tr("Argument: %s", msgValueIsNotAString(keyArgumentName)))
		}
		if arg.Name == "" {
			return spec.metadataError(tr("Argument: \"%s\" is empty", keyArgumentName))
		}

		if raw, ok = obj[keyArgumentDescrip]; ok {
			if arg.Description, ok = asString(raw); !ok {
				return spec.metadataError(tr("Argument: %s", msgValueIsNotAString(keyArgumentDescrip)))
			}
		}

		if raw, ok = obj[keyArgumentParam]; ok {
			if arg.Parameter, ok = asString(raw); !ok {
				return spec.metadataError(tr("Argument: %s", msgValueIsNotAString(keyArgumentParam)))
			}
		}

		spec.argumentDescriptions = append(spec.argumentDescriptions, arg)
	}
	return nil
}

// isNull reports whether raw is the JSON null literal. json.Unmarshal treats
// null as a no-op for most target types, which would let null pass for any of
// the typed accessors below.
func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// asString decodes raw as a JSON string.
func asString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// asBool decodes raw as a JSON bool.
func asBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// asObject decodes raw as a JSON object.
func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if isNull(raw) {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// asArray decodes raw as a JSON array.
func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if isNull(raw) {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

// asMultilineString decodes raw as either a string or an array of strings
// joined with newlines.
func asMultilineString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	if s, ok := asString(raw); ok {
		return s, true
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}
