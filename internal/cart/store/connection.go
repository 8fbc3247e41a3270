package store

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

var ErrEmptyConnectionString = errors.New("empty redis connection string")

// ParseConnectionString accepts either a URL (redis://, rediss://, unix://) or the
// comma-separated form "host:port,password=...,user=...,ssl=true,defaultDatabase=N".
// Unknown options in the comma-separated form are ignored.
func ParseConnectionString(s string) (*redis.Options, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyConnectionString
	}
	if strings.Contains(s, "://") {
		opts, err := redis.ParseURL(s)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}

	opts := &redis.Options{}
	useTLS := false
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, isOption := strings.Cut(part, "=")
		if !isOption {
			// first endpoint wins; extra endpoints would need a cluster client
			if opts.Addr == "" {
				opts.Addr = withDefaultPort(part)
			}
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "password":
			opts.Password = value
		case "user", "username":
			opts.Username = value
		case "ssl":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("invalid ssl option %q: %w", value, err)
			}
			useTLS = b
		case "defaultdatabase":
			db, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid defaultDatabase option %q: %w", value, err)
			}
			opts.DB = db
		}
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("no endpoint in redis connection string")
	}
	if useTLS {
		host, _, _ := net.SplitHostPort(opts.Addr)
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "6379")
}

// Redacted strips credentials from a connection string so it can be logged.
func Redacted(s string) string {
	opts, err := ParseConnectionString(s)
	if err != nil {
		return "<invalid>"
	}
	scheme := "redis"
	if opts.TLSConfig != nil {
		scheme = "rediss"
	}
	return fmt.Sprintf("%s://%s/%d", scheme, opts.Addr, opts.DB)
}
