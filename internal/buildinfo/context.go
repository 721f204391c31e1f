// Package buildinfo holds build-time metadata, kept apart from user
// configuration. main fills it from linker flags.
package buildinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	Version() string
	BuildDate() string
	SystemID() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
	// systemID identifies this process in telemetry and MQTT client ids
	systemID string
}

// NewContext returns build metadata. An empty systemID is replaced with a
// random one.
func NewContext(version, buildDate, systemID string) *Context {
	if systemID == "" {
		systemID = uuid.NewString()
	}
	return &Context{version: version, buildDate: buildDate, systemID: systemID}
}

func orUnknown(c *Context, v func(*Context) string) string {
	if c == nil {
		return UnknownValue
	}
	if s := v(c); s != "" {
		return s
	}
	return UnknownValue
}

// Version returns the version tag.
func (c *Context) Version() string {
	return orUnknown(c, func(c *Context) string { return c.version })
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	return orUnknown(c, func(c *Context) string { return c.buildDate })
}

// SystemID returns the process identifier.
func (c *Context) SystemID() string {
	return orUnknown(c, func(c *Context) string { return c.systemID })
}

// Release is the telemetry release name, "rtsync@<version>".
func (c *Context) Release() string {
	return "rtsync@" + c.Version()
}

// String formats the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("rtsync %s (built %s)", c.Version(), c.BuildDate())
}
