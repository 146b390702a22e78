package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	maxSearchQueryLength = 120
	maxSearchSkip        = 100000
)

// ProductSearch serves the storefront search listing.
func ProductSearch(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		query, err := parseSearchQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Search(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ProductGet(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		id, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("id")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id").WithDetails(map[string]any{"field": "id"}))
			return
		}

		dto, err := svc.GetProduct(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func parseSearchQuery(r *http.Request) (product.SearchQuery, error) {
	q := r.URL.Query()
	query := product.SearchQuery{
		Q:           validators.SanitizeString(q.Get("q"), maxSearchQueryLength),
		Colors:      validators.ParseQueryList(r, "colors"),
		Sizes:       validators.ParseQueryList(r, "sizes"),
		Gender:      product.GenderFilter(strings.ToLower(strings.TrimSpace(q.Get("gender")))),
		SortByPrice: strings.ToLower(strings.TrimSpace(q.Get("sortByPrice"))),
	}

	var err error
	if query.ExactMode, err = validators.ParseQueryBool(r, "exactMode"); err != nil {
		return query, err
	}
	if query.Discount, err = validators.ParseQueryBool(r, "discount"); err != nil {
		return query, err
	}
	if query.MinPrice, err = validators.ParseQueryDecimal(r, "minPrice"); err != nil {
		return query, err
	}
	if query.MaxPrice, err = validators.ParseQueryDecimal(r, "maxPrice"); err != nil {
		return query, err
	}
	if query.Skip, err = validators.ParseQueryInt(r, "skip", 0, 0, maxSearchSkip); err != nil {
		return query, err
	}
	return query, nil
}
