package protector

import (
	"github.com/jbmetz/go-bde/internal/bytestream"
	"github.com/jbmetz/go-bde/internal/fvemeta"
)

func decodeDescription(p fvemeta.UnicodeStringPayload) (string, error) {
	return bytestream.UTF16LEToString(p.Raw)
}
