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

package odooclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/pkg/mcperrors"
	"github.com/tombee/conductor/pkg/observability"
	"github.com/tombee/conductor/pkg/secrets"
)

// modernClient speaks the bearer-authenticated /json/2/{db}/{model}/{method}
// surface. It is stateless: no login round-trip, no session state.
type modernClient struct {
	descriptor *instanceconfig.Descriptor
	httpClient *http.Client
	log        *slog.Logger
	tracer     observability.Tracer
	masker     *secrets.Masker
}

func newModernClient(d *instanceconfig.Descriptor, hc *http.Client, log *slog.Logger, tracer observability.Tracer, masker *secrets.Masker) *modernClient {
	return &modernClient{descriptor: d, httpClient: hc, log: log, tracer: tracer, masker: masker}
}

func (c *modernClient) Close() {}

// call performs one POST /json/2/{db}/{model}/{method} invocation and
// returns the decoded "result" field of the response envelope.
func (c *modernClient) call(ctx context.Context, model, method string, args []any, kwargs map[string]any) (result any, err error) {
	ctx, span := c.tracer.Start(ctx, "odoo.call", observability.WithSpanKind(observability.SpanKindClient), observability.WithAttributes(map[string]any{
		"odoo.instance": c.descriptor.Name,
		"odoo.model":    model,
		"odoo.method":   method,
	}))
	defer func() {
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetStatus(observability.StatusCodeOK, "")
		}
		span.End()
	}()

	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{"args": args, "kwargs": kwargs})
	if err != nil {
		return nil, mcperrors.InternalError("encoding request body", err)
	}
	c.log.Debug("odoo request", "model", model, "method", method, "body", c.masker.Mask(string(body)))

	url := fmt.Sprintf("%s/json/2/%s/%s/%s", c.descriptor.BaseURL, c.descriptor.Database, model, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, mcperrors.InternalError("building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.descriptor.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetError(err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result any `json:"result"`
		Error  *struct {
			Message string `json:"message"`
			Data    any    `json:"data"`
		} `json:"error"`
	}
	if decErr := json.NewDecoder(resp.Body).Decode(&envelope); decErr != nil {
		return nil, mcperrors.OdooError(fmt.Sprintf("decoding response from %s", url), decErr)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, mcperrors.AuthenticationError("odoo rejected the API key")
	}
	if envelope.Error != nil {
		return nil, mcperrors.OdooError(c.masker.Mask(envelope.Error.Message), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, mcperrors.OdooError(fmt.Sprintf("odoo returned HTTP %d", resp.StatusCode), nil)
	}
	return envelope.Result, nil
}

func (c *modernClient) Search(ctx context.Context, model string, domain []any, limit, offset int, order string, ctxParams map[string]any) ([]int64, error) {
	kw := map[string]any{"context": ctxParams}
	if limit > 0 {
		kw["limit"] = limit
	}
	if offset > 0 {
		kw["offset"] = offset
	}
	if order != "" {
		kw["order"] = order
	}
	res, err := c.call(ctx, model, "search", []any{domain}, kw)
	if err != nil {
		return nil, err
	}
	return toInt64Slice(res), nil
}

func (c *modernClient) SearchRead(ctx context.Context, model string, domain []any, fields []string, limit, offset int, order string, ctxParams map[string]any) ([]map[string]any, error) {
	kw := map[string]any{"context": ctxParams, "fields": fields}
	if limit > 0 {
		kw["limit"] = limit
	}
	if offset > 0 {
		kw["offset"] = offset
	}
	if order != "" {
		kw["order"] = order
	}
	res, err := c.call(ctx, model, "search_read", []any{domain}, kw)
	if err != nil {
		return nil, err
	}
	return toRecordSlice(res), nil
}

func (c *modernClient) Read(ctx context.Context, model string, ids []int64, fields []string, ctxParams map[string]any) ([]map[string]any, error) {
	res, err := c.call(ctx, model, "read", []any{ids}, map[string]any{"fields": fields, "context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toRecordSlice(res), nil
}

func (c *modernClient) Create(ctx context.Context, model string, values map[string]any, ctxParams map[string]any) (int64, error) {
	res, err := c.call(ctx, model, "create", []any{values}, map[string]any{"context": ctxParams})
	if err != nil {
		return 0, err
	}
	return toInt64(res), nil
}

func (c *modernClient) Write(ctx context.Context, model string, ids []int64, values map[string]any, ctxParams map[string]any) (bool, error) {
	res, err := c.call(ctx, model, "write", []any{ids, values}, map[string]any{"context": ctxParams})
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (c *modernClient) Unlink(ctx context.Context, model string, ids []int64, ctxParams map[string]any) (bool, error) {
	res, err := c.call(ctx, model, "unlink", []any{ids}, map[string]any{"context": ctxParams})
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (c *modernClient) SearchCount(ctx context.Context, model string, domain []any, ctxParams map[string]any) (int64, error) {
	res, err := c.call(ctx, model, "search_count", []any{domain}, map[string]any{"context": ctxParams})
	if err != nil {
		return 0, err
	}
	return toInt64(res), nil
}

func (c *modernClient) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	return c.call(ctx, model, method, args, kwargs)
}

func (c *modernClient) FieldsGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error) {
	res, err := c.call(ctx, model, "fields_get", []any{}, map[string]any{"allfields": fields, "context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toMap(res), nil
}

func (c *modernClient) NameSearch(ctx context.Context, model, name string, domain []any, operator string, limit int, ctxParams map[string]any) ([]map[string]any, error) {
	kw := map[string]any{"name": name, "args": domain, "operator": operator, "context": ctxParams}
	if limit > 0 {
		kw["limit"] = limit
	}
	res, err := c.call(ctx, model, "name_search", []any{}, kw)
	if err != nil {
		return nil, err
	}
	return toNameTupleSlice(res), nil
}

func (c *modernClient) NameGet(ctx context.Context, model string, ids []int64, ctxParams map[string]any) ([]map[string]any, error) {
	res, err := c.call(ctx, model, "name_get", []any{ids}, map[string]any{"context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toNameTupleSlice(res), nil
}

func (c *modernClient) DefaultGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error) {
	res, err := c.call(ctx, model, "default_get", []any{fields}, map[string]any{"context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toMap(res), nil
}

func (c *modernClient) ReadGroup(ctx context.Context, model string, domain []any, fields, groupBy []string, limit, offset int, ctxParams map[string]any) ([]map[string]any, error) {
	kw := map[string]any{"fields": fields, "groupby": groupBy, "context": ctxParams}
	if limit > 0 {
		kw["limit"] = limit
	}
	if offset > 0 {
		kw["offset"] = offset
	}
	res, err := c.call(ctx, model, "read_group", []any{domain}, kw)
	if err != nil {
		return nil, err
	}
	return toRecordSlice(res), nil
}

func (c *modernClient) Copy(ctx context.Context, model string, id int64, defaults map[string]any, ctxParams map[string]any) (int64, error) {
	res, err := c.call(ctx, model, "copy", []any{id}, map[string]any{"default": defaults, "context": ctxParams})
	if err != nil {
		return 0, err
	}
	return toInt64(res), nil
}

func (c *modernClient) Onchange(ctx context.Context, model string, values map[string]any, fieldName []string, fieldOnchange map[string]any, ctxParams map[string]any) (map[string]any, error) {
	res, err := c.call(ctx, model, "onchange", []any{[]int64{}, values, fieldName, fieldOnchange}, map[string]any{"context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toMap(res), nil
}

func (c *modernClient) ListModels(ctx context.Context, domain []any, limit, offset int, ctxParams map[string]any) ([]map[string]any, error) {
	return c.SearchRead(ctx, "ir.model", domain, []string{"model", "name", "state"}, limit, offset, "", ctxParams)
}

func (c *modernClient) CheckAccess(ctx context.Context, model, operation string, ctxParams map[string]any) (bool, error) {
	_, err := c.call(ctx, model, "check_access_rights", []any{operation}, map[string]any{"raise_exception": false, "context": ctxParams})
	if err != nil {
		var mcpErr *mcperrors.Error
		if isKind(err, mcperrors.KindAccessDenied) {
			return false, nil
		}
		_ = mcpErr
		return false, err
	}
	return true, nil
}

func (c *modernClient) GenerateReport(ctx context.Context, reportName string, ids []int64, ctxParams map[string]any) ([]byte, error) {
	res, err := c.call(ctx, "ir.actions.report", "render_qweb_pdf", []any{reportName, ids}, map[string]any{"context": ctxParams})
	if err != nil {
		return nil, err
	}
	tuple, ok := res.([]any)
	if !ok || len(tuple) == 0 {
		return nil, mcperrors.OdooError("report render returned no content", nil)
	}
	s, _ := tuple[0].(string)
	return []byte(s), nil
}

func isKind(err error, kind mcperrors.Kind) bool {
	e, ok := err.(*mcperrors.Error)
	return ok && e.Kind == kind
}
