package dsn

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	ProtocolPostgres = "postgres"
	ProtocolDuckDB   = "duckdb"
)

// Descriptor addresses a store cluster: the quorum hosts, the client port shared by
// every host, and a namespace path (database name, or a file path for embedded stores).
// Its string form is <protocol>:<hosts>:<port>:<path>.
type Descriptor struct {
	Protocol string
	Hosts    []string
	Port     int
	Path     string
}

func Parse(raw string) (Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Descriptor{}, fmt.Errorf("store url is required")
	}
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) != 4 {
		return Descriptor{}, fmt.Errorf("invalid store url %q: want <protocol>:<hosts>:<port>:<path>", raw)
	}

	d := Descriptor{
		Protocol: strings.ToLower(strings.TrimSpace(parts[0])),
		Path:     strings.TrimSpace(parts[3]),
	}
	for _, host := range strings.Split(parts[1], ",") {
		if host = strings.TrimSpace(host); host != "" {
			d.Hosts = append(d.Hosts, host)
		}
	}
	if port := strings.TrimSpace(parts[2]); port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			return Descriptor{}, fmt.Errorf("invalid store port %q: %w", port, err)
		}
		d.Port = value
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// FromOptions builds a descriptor from an embedding application's option map. A "url"
// key wins; otherwise "protocol", "host", "port" and "path" are read individually.
func FromOptions(options map[string]string) (Descriptor, error) {
	if raw, ok := options["url"]; ok && strings.TrimSpace(raw) != "" {
		return Parse(raw)
	}
	protocol := strings.TrimSpace(options["protocol"])
	if protocol == "" {
		protocol = ProtocolPostgres
	}
	return Parse(strings.Join([]string{
		protocol,
		strings.TrimSpace(options["host"]),
		strings.TrimSpace(options["port"]),
		strings.TrimSpace(options["path"]),
	}, ":"))
}

func (d Descriptor) Validate() error {
	switch d.Protocol {
	case ProtocolPostgres:
		if len(d.Hosts) == 0 {
			return fmt.Errorf("store hosts are required for protocol %q", d.Protocol)
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("invalid store port %d", d.Port)
		}
	case ProtocolDuckDB:
	default:
		return fmt.Errorf("unsupported store protocol %q", d.Protocol)
	}
	return nil
}

func (d Descriptor) String() string {
	port := ""
	if d.Port > 0 {
		port = strconv.Itoa(d.Port)
	}
	return strings.Join([]string{d.Protocol, strings.Join(d.Hosts, ","), port, d.Path}, ":")
}

// DSN renders the driver connection string. For postgres every host gets the shared
// port so the driver can fail over across the quorum; params are passed through as
// runtime parameters (e.g. statement_timeout).
func (d Descriptor) DSN(user, password string, params map[string]string) string {
	if d.Protocol == ProtocolDuckDB {
		return d.Path
	}

	hosts := make([]string, 0, len(d.Hosts))
	for _, host := range d.Hosts {
		hosts = append(hosts, net.JoinHostPort(host, strconv.Itoa(d.Port)))
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   strings.Join(hosts, ","),
		Path:   "/" + strings.TrimPrefix(d.Path, "/"),
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for key := range params {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		query := url.Values{}
		for _, key := range keys {
			query.Set(key, params[key])
		}
		u.RawQuery = query.Encode()
	}
	return u.String()
}
