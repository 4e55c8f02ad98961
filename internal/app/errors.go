package app

import (
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

var ErrNotFound = ports.ErrNotFound
