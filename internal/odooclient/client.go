// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package odooclient implements the dual-protocol Odoo capability set:
// a stateless "modern" client speaking the bearer-authenticated
// /json/2/{db}/{model}/{method} surface, and a "legacy" client speaking
// /jsonrpc with a cached session uid.
package odooclient

import "context"

// Client is the capability set every Odoo instance is accessed through.
// Exactly one of modernClient or legacyClient backs any given instance.
type Client interface {
	Search(ctx context.Context, model string, domain []any, limit, offset int, order string, ctxParams map[string]any) ([]int64, error)
	SearchRead(ctx context.Context, model string, domain []any, fields []string, limit, offset int, order string, ctxParams map[string]any) ([]map[string]any, error)
	Read(ctx context.Context, model string, ids []int64, fields []string, ctxParams map[string]any) ([]map[string]any, error)
	Create(ctx context.Context, model string, values map[string]any, ctxParams map[string]any) (int64, error)
	Write(ctx context.Context, model string, ids []int64, values map[string]any, ctxParams map[string]any) (bool, error)
	Unlink(ctx context.Context, model string, ids []int64, ctxParams map[string]any) (bool, error)
	SearchCount(ctx context.Context, model string, domain []any, ctxParams map[string]any) (int64, error)
	ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error)
	FieldsGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error)
	NameSearch(ctx context.Context, model, name string, domain []any, operator string, limit int, ctxParams map[string]any) ([]map[string]any, error)
	NameGet(ctx context.Context, model string, ids []int64, ctxParams map[string]any) ([]map[string]any, error)
	DefaultGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error)
	ReadGroup(ctx context.Context, model string, domain []any, fields, groupBy []string, limit, offset int, ctxParams map[string]any) ([]map[string]any, error)
	Copy(ctx context.Context, model string, id int64, defaults map[string]any, ctxParams map[string]any) (int64, error)
	Onchange(ctx context.Context, model string, values map[string]any, fieldName []string, fieldOnchange map[string]any, ctxParams map[string]any) (map[string]any, error)
	ListModels(ctx context.Context, domain []any, limit, offset int, ctxParams map[string]any) ([]map[string]any, error)
	CheckAccess(ctx context.Context, model, operation string, ctxParams map[string]any) (bool, error)
	GenerateReport(ctx context.Context, reportName string, ids []int64, ctxParams map[string]any) ([]byte, error)

	// Close releases any resources (idle connections, etc.) held by the client.
	Close()
}
