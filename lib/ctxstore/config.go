package ctxstore

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// Config is the immutable configuration of a context store. It is supplied once at
// construction and never mutated by the store.
type Config struct {
	// network location of the remote store
	Host string
	Port int

	// optional credentials, only used if Username is not empty
	Username string
	Password string

	// logical database selected after connecting
	DB int

	// optional namespace prefix applied to every scope name
	Prefix string

	// default deadline for operations whose context has none (0 = no deadline)
	TimeoutSecond int

	// if true, Set with Undefined waits until the remote delete is acknowledged,
	// otherwise it returns immediately (fire-and-forget)
	AwaitUnset bool
}

// HasCredentials reports whether credentials are embedded in the connection URL.
func (c *Config) HasCredentials() bool {
	return c.Username != ""
}

// URL builds the connection URL scheme://[username:password@]host:port
func (c *Config) URL(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	if c.HasCredentials() {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

// WithTimeout applies the configured default deadline to ctx if ctx has none.
// The returned cancel function must always be called.
func (c *Config) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.TimeoutSecond <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(c.TimeoutSecond)*time.Second)
}

// String returns a formatted string representation of the configuration
// The password is never printed.
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Connection
	addSection("Remote Store")
	addField("Address", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
	addField("Database", strconv.Itoa(c.DB))
	if c.HasCredentials() {
		addField("Username", c.Username)
		addField("Password", strings.Repeat("*", 8))
	} else {
		addField("Authentication", "none")
	}

	// Behaviour
	addSection("Context Store")
	prefix := c.Prefix
	if prefix == "" {
		prefix = "(none)"
	}
	addField("Prefix", prefix)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Await Unset", fmt.Sprintf("%t", c.AwaitUnset))

	return sb.String()
}
