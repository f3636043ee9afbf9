package types

// JavaInfo is what `java -XshowSettings:properties -version` reveals about
// an executable.
type JavaInfo struct {
	JavaHome             string `json:"javaHome,omitempty"`
	ClassVersion         string `json:"classVersion,omitempty"`
	RuntimeVersion       string `json:"runtimeVersion,omitempty"`
	SpecificationVersion string `json:"specificationVersion,omitempty"`
	MajorVersion         int    `json:"majorVersion"`
	Vendor               string `json:"vendor,omitempty"`
	VendorVersion        string `json:"vendorVersion,omitempty"`
}

// JavaPreset names a Java executable choice servers may reference.
type JavaPreset struct {
	Name       string    `json:"name"`
	Executable string    `json:"executable"`
	Info       *JavaInfo `json:"info,omitempty"`
	Registered bool      `json:"registered"` // user-registered vs auto-detected
}

// JavaSuitability ranks an installed major version against a requirement.
type JavaSuitability string

const (
	JavaMatch        JavaSuitability = "MATCH"        // equal major
	JavaWeakMatch    JavaSuitability = "WEAK_MATCH"   // newer major
	JavaIncompatible JavaSuitability = "INCOMPATIBLE" // older major
)

// RateJava compares an installed major version to a required one.
func RateJava(installed, required int) JavaSuitability {
	switch {
	case installed == required:
		return JavaMatch
	case installed > required:
		return JavaWeakMatch
	default:
		return JavaIncompatible
	}
}
