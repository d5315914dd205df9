package catalog

import (
	"strings"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/textutil"
)

// Resolve matches a decoded code against products. An exact SKU match wins;
// otherwise the first product, in slice order, whose name contains the code
// case-insensitively is returned. The slice order is the tie-break, so two
// catalogs with equal contents in different orders may resolve an ambiguous
// code differently.
//
// Name containment lets short codes match unrelated products; that loss of
// precision is accepted.
func Resolve(text string, products []model.Product) (model.Product, bool) {
	code := textutil.NormalizeCode(text)
	if code == "" {
		return model.Product{}, false
	}
	for _, p := range products {
		if p.SKU == code {
			return p, true
		}
	}
	folded := textutil.FoldKey(code)
	for _, p := range products {
		if strings.Contains(textutil.FoldKey(p.Name), folded) {
			return p, true
		}
	}
	return model.Product{}, false
}
