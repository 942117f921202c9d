package cluster

import (
	"errors"
	"fmt"
)

// ConnectivityError reports that a cluster could not be reached: the request
// timed out, the connection was refused or the host did not resolve.
type ConnectivityError struct {
	Cluster string // base URL of the cluster
	Op      string // e.g. "GET /_cat/indices"
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("error connecting to %s (%s): %v", e.Cluster, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response from a cluster.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsConnectivity reports whether err is, or wraps, a ConnectivityError.
func IsConnectivity(err error) bool {
	var cerr *ConnectivityError
	return errors.As(err, &cerr)
}

// IsNotFound reports whether err is an HTTP 404 from a cluster.
func IsNotFound(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code == 404
}
