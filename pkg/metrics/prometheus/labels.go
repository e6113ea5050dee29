package prometheus

import (
	"strconv"

	"github.com/marmos91/corerpc/pkg/dispatcher"
)

func groupLabel(g dispatcher.Group) string { return strconv.FormatUint(uint64(g), 10) }

func idLabel(id dispatcher.ID) string { return strconv.FormatUint(uint64(id), 10) }
