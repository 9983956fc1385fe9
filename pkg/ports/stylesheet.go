package ports

import (
	"context"

	"github.com/beevik/etree"
)

// StylesheetApplier runs a stylesheet located at href over input and
// returns the serialized result.
type StylesheetApplier interface {
	Apply(ctx context.Context, href string, input *etree.Element) (string, error)
}
