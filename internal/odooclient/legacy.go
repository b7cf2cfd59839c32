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
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/pkg/mcperrors"
	"github.com/tombee/conductor/pkg/observability"
	"github.com/tombee/conductor/pkg/secrets"
)

// legacyClient speaks the /jsonrpc surface: common.authenticate once,
// then object.execute_kw for every primitive. The uid is cached on the
// handle and guarded by a mutex that is held only around login and the
// single retry decision, per spec.md §4.B / §5.
type legacyClient struct {
	descriptor *instanceconfig.Descriptor
	httpClient *http.Client
	log        *slog.Logger
	tracer     observability.Tracer
	masker     *secrets.Masker

	mu  sync.Mutex
	uid int64 // 0 until the first successful authenticate
}

func newLegacyClient(d *instanceconfig.Descriptor, hc *http.Client, log *slog.Logger, tracer observability.Tracer, masker *secrets.Masker) *legacyClient {
	return &legacyClient{descriptor: d, httpClient: hc, log: log, tracer: tracer, masker: masker}
}

func (c *legacyClient) Close() {}

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      int            `json:"id"`
}

type jsonRPCResponse struct {
	Result any `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"data"`
	} `json:"error"`
}

func (c *legacyClient) rpc(ctx context.Context, service, method string, args []any) (result any, err error) {
	ctx, span := c.tracer.Start(ctx, "odoo.rpc", observability.WithSpanKind(observability.SpanKindClient), observability.WithAttributes(map[string]any{
		"odoo.instance": c.descriptor.Name,
		"odoo.service":  service,
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

	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  map[string]any{"service": service, "method": method, "args": args},
		ID:      1,
	})
	if err != nil {
		return nil, mcperrors.InternalError("encoding jsonrpc request", err)
	}
	// args carries the database password on every authenticate/execute_kw
	// call, so the masked form is the only one that ever reaches a log.
	c.log.Debug("odoo rpc", "service", service, "method", method, "body", c.masker.Mask(string(body)))

	url := c.descriptor.BaseURL + "/jsonrpc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, mcperrors.InternalError("building jsonrpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetError(err)
	}
	defer resp.Body.Close()

	var rpcResp jsonRPCResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&rpcResp); decErr != nil {
		return nil, mcperrors.OdooError("decoding jsonrpc response", decErr)
	}
	if rpcResp.Error != nil {
		maskedMessage := c.masker.Mask(rpcResp.Error.Message)
		if isAuthFailure(rpcResp.Error.Data.Name, rpcResp.Error.Message) {
			return nil, mcperrors.AuthenticationError(maskedMessage)
		}
		if strings.Contains(strings.ToLower(rpcResp.Error.Data.Name), "accesserror") {
			return nil, mcperrors.AccessDenied(maskedMessage)
		}
		return nil, mcperrors.OdooError(maskedMessage, nil)
	}
	return rpcResp.Result, nil
}

func isAuthFailure(errName, message string) bool {
	lower := strings.ToLower(errName + " " + message)
	return strings.Contains(lower, "accessdenied") || strings.Contains(lower, "authenticationerror") ||
		strings.Contains(lower, "invalid") && strings.Contains(lower, "session")
}

// ensureUID returns the cached uid, logging in once if necessary.
func (c *legacyClient) ensureUID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	return c.login(ctx)
}

// login performs common.authenticate and caches the resulting uid.
// Caller must hold c.mu.
func (c *legacyClient) login(ctx context.Context) (int64, error) {
	res, err := c.rpc(ctx, "common", "authenticate", []any{
		c.descriptor.Database, c.descriptor.Username, c.descriptor.Password, map[string]any{},
	})
	if err != nil {
		return 0, err
	}
	uid := toInt64(res)
	if uid == 0 {
		return 0, mcperrors.AuthenticationError("odoo authenticate returned no uid")
	}
	c.uid = uid
	return uid, nil
}

// relogin forces a fresh authenticate call, discarding any cached uid.
// Caller must hold c.mu.
func (c *legacyClient) relogin(ctx context.Context) (int64, error) {
	c.uid = 0
	return c.login(ctx)
}

// executeKw calls object.execute_kw, retrying at most once via relogin
// on a server-declared authentication error, per spec.md §4.B.
func (c *legacyClient) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	uid, err := c.ensureUID(ctx)
	if err != nil {
		return nil, err
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if args == nil {
		args = []any{}
	}

	call := func(uid int64) (any, error) {
		return c.rpc(ctx, "object", "execute_kw", []any{
			c.descriptor.Database, uid, c.descriptor.Password, model, method, args, kwargs,
		})
	}

	res, err := call(uid)
	if err != nil && isKind(err, mcperrors.KindAuthenticationError) {
		c.mu.Lock()
		newUID, reloginErr := c.relogin(ctx)
		c.mu.Unlock()
		if reloginErr != nil {
			return nil, reloginErr
		}
		return call(newUID)
	}
	return res, err
}

func (c *legacyClient) Search(ctx context.Context, model string, domain []any, limit, offset int, order string, ctxParams map[string]any) ([]int64, error) {
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
	res, err := c.executeKw(ctx, model, "search", []any{domain}, kw)
	if err != nil {
		return nil, err
	}
	return toInt64Slice(res), nil
}

func (c *legacyClient) SearchRead(ctx context.Context, model string, domain []any, fields []string, limit, offset int, order string, ctxParams map[string]any) ([]map[string]any, error) {
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
	res, err := c.executeKw(ctx, model, "search_read", []any{domain}, kw)
	if err != nil {
		return nil, err
	}
	return toRecordSlice(res), nil
}

func (c *legacyClient) Read(ctx context.Context, model string, ids []int64, fields []string, ctxParams map[string]any) ([]map[string]any, error) {
	res, err := c.executeKw(ctx, model, "read", []any{ids}, map[string]any{"fields": fields, "context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toRecordSlice(res), nil
}

func (c *legacyClient) Create(ctx context.Context, model string, values map[string]any, ctxParams map[string]any) (int64, error) {
	res, err := c.executeKw(ctx, model, "create", []any{values}, map[string]any{"context": ctxParams})
	if err != nil {
		return 0, err
	}
	return toInt64(res), nil
}

func (c *legacyClient) Write(ctx context.Context, model string, ids []int64, values map[string]any, ctxParams map[string]any) (bool, error) {
	res, err := c.executeKw(ctx, model, "write", []any{ids, values}, map[string]any{"context": ctxParams})
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (c *legacyClient) Unlink(ctx context.Context, model string, ids []int64, ctxParams map[string]any) (bool, error) {
	res, err := c.executeKw(ctx, model, "unlink", []any{ids}, map[string]any{"context": ctxParams})
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (c *legacyClient) SearchCount(ctx context.Context, model string, domain []any, ctxParams map[string]any) (int64, error) {
	res, err := c.executeKw(ctx, model, "search_count", []any{domain}, map[string]any{"context": ctxParams})
	if err != nil {
		return 0, err
	}
	return toInt64(res), nil
}

func (c *legacyClient) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	return c.executeKw(ctx, model, method, args, kwargs)
}

func (c *legacyClient) FieldsGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error) {
	res, err := c.executeKw(ctx, model, "fields_get", []any{}, map[string]any{"allfields": fields, "context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toMap(res), nil
}

func (c *legacyClient) NameSearch(ctx context.Context, model, name string, domain []any, operator string, limit int, ctxParams map[string]any) ([]map[string]any, error) {
	kw := map[string]any{"name": name, "args": domain, "operator": operator, "context": ctxParams}
	if limit > 0 {
		kw["limit"] = limit
	}
	res, err := c.executeKw(ctx, model, "name_search", []any{}, kw)
	if err != nil {
		return nil, err
	}
	return toNameTupleSlice(res), nil
}

func (c *legacyClient) NameGet(ctx context.Context, model string, ids []int64, ctxParams map[string]any) ([]map[string]any, error) {
	res, err := c.executeKw(ctx, model, "name_get", []any{ids}, map[string]any{"context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toNameTupleSlice(res), nil
}

func (c *legacyClient) DefaultGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error) {
	res, err := c.executeKw(ctx, model, "default_get", []any{fields}, map[string]any{"context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toMap(res), nil
}

func (c *legacyClient) ReadGroup(ctx context.Context, model string, domain []any, fields, groupBy []string, limit, offset int, ctxParams map[string]any) ([]map[string]any, error) {
	kw := map[string]any{"fields": fields, "groupby": groupBy, "context": ctxParams}
	if limit > 0 {
		kw["limit"] = limit
	}
	if offset > 0 {
		kw["offset"] = offset
	}
	res, err := c.executeKw(ctx, model, "read_group", []any{domain}, kw)
	if err != nil {
		return nil, err
	}
	return toRecordSlice(res), nil
}

func (c *legacyClient) Copy(ctx context.Context, model string, id int64, defaults map[string]any, ctxParams map[string]any) (int64, error) {
	res, err := c.executeKw(ctx, model, "copy", []any{id}, map[string]any{"default": defaults, "context": ctxParams})
	if err != nil {
		return 0, err
	}
	return toInt64(res), nil
}

func (c *legacyClient) Onchange(ctx context.Context, model string, values map[string]any, fieldName []string, fieldOnchange map[string]any, ctxParams map[string]any) (map[string]any, error) {
	res, err := c.executeKw(ctx, model, "onchange", []any{[]int64{}, values, fieldName, fieldOnchange}, map[string]any{"context": ctxParams})
	if err != nil {
		return nil, err
	}
	return toMap(res), nil
}

func (c *legacyClient) ListModels(ctx context.Context, domain []any, limit, offset int, ctxParams map[string]any) ([]map[string]any, error) {
	return c.SearchRead(ctx, "ir.model", domain, []string{"model", "name", "state"}, limit, offset, "", ctxParams)
}

func (c *legacyClient) CheckAccess(ctx context.Context, model, operation string, ctxParams map[string]any) (bool, error) {
	_, err := c.executeKw(ctx, model, "check_access_rights", []any{operation}, map[string]any{"raise_exception": false, "context": ctxParams})
	if err != nil {
		if isKind(err, mcperrors.KindAccessDenied) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *legacyClient) GenerateReport(ctx context.Context, reportName string, ids []int64, ctxParams map[string]any) ([]byte, error) {
	res, err := c.executeKw(ctx, "ir.actions.report", "render_qweb_pdf", []any{reportName, ids}, map[string]any{"context": ctxParams})
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
