package reconciliation

import "github.com/sanctuarypay/tithe-backend/pkg/pagination"

func paginationFirst() pagination.Params {
	return pagination.Params{Limit: pagination.DefaultLimit}
}
