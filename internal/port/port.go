// Package port picks a free local TCP port for a review environment.
package port

import (
	"net"
	"strconv"

	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/state"
)

// Assign scans start..end inclusive in ascending order and returns the first
// port that no live record holds and that a 127.0.0.1 listener can bind.
//
// The bind check is point-in-time: another process may take the port before
// the environment uses it. Uniqueness among chaba environments comes from the
// caller running Assign inside the same state transaction that records the port.
func Assign(st *state.State, start, end int) (int, error) {
	return assign(st, start, end, available)
}

func assign(st *state.State, start, end int, probe func(int) bool) (int, error) {
	if start < 1 || end > 65535 || start > end {
		return 0, errs.Validationf("invalid port range %d-%d", start, end)
	}

	used := st.AssignedPorts()
	for p := start; p <= end; p++ {
		if _, taken := used[p]; taken {
			continue
		}
		if probe(p) {
			return p, nil
		}
	}
	return 0, &errs.NoAvailablePortError{Start: start, End: end}
}

func available(p int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
