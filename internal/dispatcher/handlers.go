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

package dispatcher

import (
	"context"
	"encoding/base64"

	"github.com/tombee/conductor/internal/odooclient"
	"github.com/tombee/conductor/pkg/mcperrors"
)

// client resolves the pool handle for the "instance" argument, common
// to every handler.
func (d *Dispatcher) client(e extracted) (odooclient.Client, string, error) {
	instance, err := requireString(e, "instance")
	if err != nil {
		return nil, "", err
	}
	c, err := d.pool.Get(instance)
	if err != nil {
		return nil, "", mcperrors.InvalidArguments(err.Error())
	}
	return c, instance, nil
}

func (d *Dispatcher) handleSearch(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	domain := optAnySlice(e, "domain")
	ids, err := c.Search(ctx, model, domain, optInt(e, "limit"), optInt(e, "offset"), optString(e, "order"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"ids": ids, "count": len(ids)}, nil
}

func (d *Dispatcher) handleSearchRead(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	records, err := c.SearchRead(ctx, model, optAnySlice(e, "domain"), optStringSlice(e, "fields"),
		optInt(e, "limit"), optInt(e, "offset"), optString(e, "order"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": records, "count": len(records)}, nil
}

func (d *Dispatcher) handleRead(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	ids, err := requireInt64Slice(e, "ids")
	if err != nil {
		return nil, err
	}
	records, err := c.Read(ctx, model, ids, optStringSlice(e, "fields"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": records}, nil
}

func (d *Dispatcher) handleCreate(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	values, err := requireMap(e, "values")
	if err != nil {
		return nil, err
	}
	id, err := c.Create(ctx, model, values, optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "success": true}, nil
}

func (d *Dispatcher) handleWrite(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	ids, err := requireInt64Slice(e, "ids")
	if err != nil {
		return nil, err
	}
	values, err := requireMap(e, "values")
	if err != nil {
		return nil, err
	}
	ok, err := c.Write(ctx, model, ids, values, optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": ok, "updated_count": len(ids)}, nil
}

func (d *Dispatcher) handleUnlink(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	ids, err := requireInt64Slice(e, "ids")
	if err != nil {
		return nil, err
	}
	ok, err := c.Unlink(ctx, model, ids, optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": ok, "deleted_count": len(ids)}, nil
}

func (d *Dispatcher) handleSearchCount(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	count, err := c.SearchCount(ctx, model, optAnySlice(e, "domain"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": count}, nil
}

func (d *Dispatcher) handleExecute(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	method, err := requireString(e, "method")
	if err != nil {
		return nil, err
	}
	result, err := c.ExecuteKw(ctx, model, method, optAnySlice(e, "args"), optMap(e, "kwargs"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

func (d *Dispatcher) handleWorkflowAction(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	ids, err := requireInt64Slice(e, "ids")
	if err != nil {
		return nil, err
	}
	action, err := requireString(e, "action")
	if err != nil {
		return nil, err
	}
	result, err := c.ExecuteKw(ctx, model, action, []any{idsToAny(ids)}, optMap(e, "kwargs"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result, "executed_on": ids}, nil
}

func (d *Dispatcher) handleGenerateReport(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	reportName, err := requireString(e, "reportName")
	if err != nil {
		return nil, err
	}
	ids, err := requireInt64Slice(e, "ids")
	if err != nil {
		return nil, err
	}
	pdf, err := c.GenerateReport(ctx, reportName, ids, optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"pdf_base64":  base64.StdEncoding.EncodeToString(pdf),
		"report_name": reportName,
		"record_ids":  ids,
	}, nil
}

func (d *Dispatcher) handleGetModelMetadata(ctx context.Context, e extracted) (any, error) {
	c, instance, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}

	fields, hit := d.cache.GetFields(instance, model)
	if !hit {
		fields, err = c.FieldsGet(ctx, model, optStringSlice(e, "fields"), optMap(e, "context"))
		if err != nil {
			return nil, err
		}
		d.cache.PutFields(instance, model, fields)
	}
	return map[string]any{"model": map[string]any{"name": model, "fields": fields}}, nil
}

func (d *Dispatcher) handleListModels(ctx context.Context, e extracted) (any, error) {
	c, instance, err := d.client(e)
	if err != nil {
		return nil, err
	}

	domain := optAnySlice(e, "domain")
	limit := optInt(e, "limit")
	offset := optInt(e, "offset")

	// The cached bucket only covers the unfiltered/default listing; a
	// caller-supplied domain or pagination always goes straight through.
	if domain == nil && limit == 0 && offset == 0 {
		if cached, hit := d.cache.GetModels(instance); hit {
			return map[string]any{"records": cached, "count": len(cached)}, nil
		}
	}

	records, err := c.ListModels(ctx, domain, limit, offset, optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	if domain == nil && limit == 0 && offset == 0 {
		d.cache.PutModels(instance, records)
	}
	return map[string]any{"records": records, "count": len(records)}, nil
}

func (d *Dispatcher) handleCheckAccess(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	operation, err := requireString(e, "operation")
	if err != nil {
		return nil, err
	}
	allowed, err := c.CheckAccess(ctx, model, operation, optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"allowed": allowed, "operation": operation}, nil
}

// maxBatchCreate caps create_batch per spec.md §4.F's operation table.
const maxBatchCreate = 100

func (d *Dispatcher) handleCreateBatch(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	records := optMapsSlice(e, "records")
	if len(records) == 0 {
		return nil, mcperrors.InvalidArguments("argument \"records\" must be a non-empty array of objects")
	}
	if len(records) > maxBatchCreate {
		records = records[:maxBatchCreate]
	}

	ids := make([]int64, 0, len(records))
	for _, values := range records {
		id, createErr := c.Create(ctx, model, values, optMap(e, "context"))
		if createErr != nil {
			return nil, createErr
		}
		ids = append(ids, id)
	}
	return map[string]any{"ids": ids, "created_count": len(ids)}, nil
}

func (d *Dispatcher) handleReadGroup(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	fields := optStringSlice(e, "fields")
	groupBy := optStringSlice(e, "groupBy")
	if len(groupBy) == 0 {
		return nil, mcperrors.InvalidArguments("missing required argument \"groupBy\"")
	}
	groups, err := c.ReadGroup(ctx, model, optAnySlice(e, "domain"), fields, groupBy, optInt(e, "limit"), optInt(e, "offset"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"groups": groups}, nil
}

func (d *Dispatcher) handleNameSearch(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	name := optString(e, "name")
	records, err := c.NameSearch(ctx, model, name, optAnySlice(e, "domain"), optString(e, "operator"), optInt(e, "limit"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": records}, nil
}

func (d *Dispatcher) handleNameGet(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	ids, err := requireInt64Slice(e, "ids")
	if err != nil {
		return nil, err
	}
	records, err := c.NameGet(ctx, model, ids, optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": records}, nil
}

func (d *Dispatcher) handleDefaultGet(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	defaults, err := c.DefaultGet(ctx, model, optStringSlice(e, "fields"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"defaults": defaults}, nil
}

func (d *Dispatcher) handleCopy(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	id, err := requireInt64(e, "id")
	if err != nil {
		return nil, err
	}
	newID, err := c.Copy(ctx, model, id, optMap(e, "defaults"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": newID, "success": true}, nil
}

func (d *Dispatcher) handleOnchange(ctx context.Context, e extracted) (any, error) {
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	model, err := requireString(e, "model")
	if err != nil {
		return nil, err
	}
	values, err := requireMap(e, "values")
	if err != nil {
		return nil, err
	}
	result, err := c.Onchange(ctx, model, values, optStringSlice(e, "fieldName"), optMap(e, "fieldOnchange"), optMap(e, "context"))
	if err != nil {
		return nil, err
	}

	out := map[string]any{"value": result["value"]}
	if w, ok := result["warning"]; ok {
		out["warning"] = w
	}
	if dom, ok := result["domain"]; ok {
		out["domain"] = dom
	}
	return out, nil
}

func idsToAny(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
