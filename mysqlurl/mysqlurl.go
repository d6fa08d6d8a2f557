package mysqlurl

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	mysqldriver "github.com/go-sql-driver/mysql"
)

const defaultPort = 3306

// Parse accepts either a go-sql-driver DSN (optionally prefixed with a
// scheme such as mysql:// or jdbc:mysql://) or a URL style connection string.
func Parse(connStr string) (*mysqldriver.Config, error) {
	if cfg, err := parseDSN(connStr); err == nil {
		return cfg, nil
	}
	return parseURL(connStr)
}

func parseDSN(connStr string) (*mysqldriver.Config, error) {
	byProtocol := strings.SplitN(connStr, "://", 2)
	cfg, err := mysqldriver.ParseDSN(byProtocol[len(byProtocol)-1])
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing DSN for %q", connStr)
	}
	return cfg, nil
}

func parseURL(connStr string) (*mysqldriver.Config, error) {
	u, err := url.Parse(strings.TrimPrefix(connStr, "jdbc:"))
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing conn str for %q", connStr)
	}
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" && u.Host != "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), strconv.Itoa(defaultPort))
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if err := applyParams(cfg, u.Query()); err != nil {
		return nil, errors.Wrapf(err, "error parsing conn str for %q", connStr)
	}
	// Reparse with the driver to normalize any fields.
	return mysqldriver.ParseDSN(cfg.FormatDSN())
}

func applyParams(cfg *mysqldriver.Config, params url.Values) error {
	for k, v := range params {
		if len(v) == 0 {
			continue
		}
		val := v[0]
		switch k {
		case "parseTime":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return errors.Newf("invalid bool value for parseTime: %s", val)
			}
			cfg.ParseTime = b
		case "timeout":
			d, err := time.ParseDuration(val)
			if err != nil {
				return errors.Wrapf(err, "invalid timeout %s", val)
			}
			cfg.Timeout = d
		case "tls":
			cfg.TLSConfig = val
		case "collation":
			cfg.Collation = val
		default:
			if cfg.Params == nil {
				cfg.Params = make(map[string]string)
			}
			cfg.Params[k] = val
		}
	}
	return nil
}

// FromParts builds a driver config from discrete connection settings.
func FromParts(host string, port int, user, password, database string) *mysqldriver.Config {
	if port == 0 {
		port = defaultPort
	}
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.User = user
	cfg.Passwd = password
	cfg.DBName = database
	return cfg
}

// ConnStr renders cfg as a mysql:// URL.
func ConnStr(cfg *mysqldriver.Config) string {
	u := url.URL{
		Scheme: "mysql",
		User:   url.UserPassword(cfg.User, cfg.Passwd),
		Host:   cfg.Addr,
		Path:   "/" + cfg.DBName,
	}
	vals := make(url.Values)
	if cfg.ParseTime {
		vals.Set("parseTime", "true")
	}
	if cfg.TLSConfig != "" {
		vals.Set("tls", cfg.TLSConfig)
	}
	for k, v := range cfg.Params {
		vals.Set(k, v)
	}
	u.RawQuery = vals.Encode()
	return u.String()
}
