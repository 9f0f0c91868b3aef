package providers

import (
	"context"

	"comexexport/internal/model"
)

type Provider interface {
	Name() string
	ListFilterValues(ctx context.Context, dimension, language string) (model.FilterSet, error)
	QueryGeneral(ctx context.Context, spec model.QuerySpec) (model.RawResponse, error)
}
