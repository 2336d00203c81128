package source

import (
	"fmt"
	"net"
	"time"

	"github.com/mmornati/homeplate/internal/config"
)

// NewFromServer создаёт TimeSource из записи primary_servers / secondary_servers.
// timeout — таймаут одного запроса.
func NewFromServer(c config.ServerConfig, timeout time.Duration) (TimeSource, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("%s: host required", c.Protocol)
	}
	switch c.Protocol {
	case "", "ntp":
		return NewNTP(c.Host, c.Port, timeout), nil
	case "http", "https":
		host := c.Host
		if c.Port != "" {
			host = net.JoinHostPort(c.Host, c.Port)
		}
		return NewHTTPDate(c.Protocol+"://"+host+"/", timeout), nil
	default:
		return nil, fmt.Errorf("unknown protocol: %s", c.Protocol)
	}
}

// NewList создаёт источники из списка; ошибочные записи пропускаются и возвращаются в errs.
func NewList(list []config.ServerConfig, timeout time.Duration) (out []TimeSource, errs []error) {
	for _, c := range list {
		s, err := NewFromServer(c, timeout)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	return out, errs
}
