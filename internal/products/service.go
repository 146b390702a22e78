package product

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
)

const (
	defaultMaxResults = 20
	minQueryLength    = 3
	listingImages     = 2
)

// Service exposes the public catalog.
type Service interface {
	Search(ctx context.Context, query SearchQuery) (*SearchResult, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
}

type catalogRepository interface {
	SearchVariants(ctx context.Context, f SearchFilter) ([]models.ProductVariant, int64, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type service struct {
	repo       catalogRepository
	maxResults int
}

// NewService builds the catalog service; maxResults caps every search page.
func NewService(repo catalogRepository, maxResults int) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product repository required")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &service{repo: repo, maxResults: maxResults}, nil
}

func (s *service) Search(ctx context.Context, query SearchQuery) (*SearchResult, error) {
	filter, err := s.buildFilter(query)
	if err != nil {
		return nil, err
	}

	variants, total, err := s.repo.SearchVariants(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search products")
	}
	if int64(filter.Skip) > total {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "skip exceeds the number of results").
			WithDetails(map[string]any{"field": "skip", "max": total})
	}

	products := groupVariants(variants, listingImages)
	return &SearchResult{
		TotalCount: total - int64(filter.Skip),
		Length:     len(products),
		Products:   products,
	}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	dto := &ProductDTO{ID: product.ID, Variants: make([]VariantDTO, 0, len(product.Variants))}
	for _, v := range product.Variants {
		dto.Variants = append(dto.Variants, toVariantDTO(v, 0))
	}
	return dto, nil
}

func (s *service) buildFilter(query SearchQuery) (SearchFilter, error) {
	q := strings.TrimSpace(query.Q)
	if q != "" && len([]rune(q)) < minQueryLength {
		return SearchFilter{}, fieldError("q", "query must be at least 3 characters")
	}

	gender := query.Gender
	if gender == "" {
		gender = GenderAll
	}
	if !gender.IsValid() {
		return SearchFilter{}, fieldError("gender", "gender must be one of male, female, all, null")
	}

	switch query.SortByPrice {
	case "", "asc", "desc":
	default:
		return SearchFilter{}, fieldError("sortByPrice", "sortByPrice must be asc or desc")
	}
	if query.Skip < 0 {
		return SearchFilter{}, fieldError("skip", "skip must not be negative")
	}
	if query.MinPrice != nil && query.MaxPrice != nil && query.MinPrice.GreaterThan(*query.MaxPrice) {
		return SearchFilter{}, fieldError("minPrice", "minPrice must not exceed maxPrice")
	}

	var colors []string
	if len(query.Colors) > 0 {
		colors = detectColors(strings.Join(query.Colors, " ") + " " + q)
		if len(colors) == 0 {
			return SearchFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "Choose available colors").
				WithDetails(map[string]any{"field": "colors", "available": SearchColors})
		}
	} else {
		colors = detectColors(q)
	}

	terms := strings.Fields(strings.ToLower(q))
	if !query.ExactMode && len(colors) > 0 {
		terms = withoutColors(terms)
	}

	sizes := make([]string, 0, len(query.Sizes))
	for _, size := range query.Sizes {
		if trimmed := strings.TrimSpace(size); trimmed != "" {
			sizes = append(sizes, trimmed)
		}
	}

	return SearchFilter{
		Terms:       terms,
		Exact:       query.ExactMode,
		Colors:      colors,
		Gender:      gender,
		MinPrice:    query.MinPrice,
		MaxPrice:    query.MaxPrice,
		Discount:    query.Discount,
		Sizes:       sizes,
		SortByPrice: query.SortByPrice,
		Skip:        query.Skip,
		Limit:       s.maxResults,
	}, nil
}

// withoutColors drops palette words so "red sneakers" searches sneakers filtered to red.
func withoutColors(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if len(detectColors(term)) == 0 {
			out = append(out, term)
		}
	}
	return out
}

func fieldError(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]string{"field": field})
}
