package domain

import (
	"errors"
	"strconv"
	"strings"
)

// Sentinelles de catégorie: errors.Is(err, ErrFetch) fonctionne sur un *Error.
var (
	ErrTransport = errors.New("transport error")
	ErrProtocol  = errors.New("protocol error")
	ErrFetch     = errors.New("fetch error")
	ErrIO        = errors.New("io error")
	ErrSpawn     = errors.New("spawn error")
)

// Error porte le contexte nécessaire aux logs (endpoint, status, playlist).
type Error struct {
	Kind       error
	Op         string
	Endpoint   string
	Status     int
	PlaylistID string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.Endpoint != "" {
		b.WriteString(" endpoint=")
		b.WriteString(e.Endpoint)
	}
	if e.Status != 0 {
		b.WriteString(" status=")
		b.WriteString(strconv.Itoa(e.Status))
	}
	if e.PlaylistID != "" {
		b.WriteString(" playlist=")
		b.WriteString(e.PlaylistID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e != nil && e.Kind != nil && target == e.Kind
}

// KindOf renvoie la sentinelle de catégorie la plus externe, ou nil.
func KindOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

// KindName sert aux logs, métriques et au journal.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrTransport:
		return "transport"
	case ErrProtocol:
		return "protocol"
	case ErrFetch:
		return "fetch"
	case ErrIO:
		return "io"
	case ErrSpawn:
		return "spawn"
	}
	if err == nil {
		return ""
	}
	return "unknown"
}

func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }
func IsProtocol(err error) bool  { return errors.Is(err, ErrProtocol) }
func IsFetch(err error) bool     { return errors.Is(err, ErrFetch) }
func IsIO(err error) bool        { return errors.Is(err, ErrIO) }
func IsSpawn(err error) bool     { return errors.Is(err, ErrSpawn) }
