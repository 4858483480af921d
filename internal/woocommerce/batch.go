package woocommerce

import (
	"encoding/json"
	"net/http"
)

// =============================================================================
// BATCH BUILDER
// =============================================================================
//
// The Store API accepts several cart operations in one HTTP request via
// POST /wc/store/v1/batch. Operations execute in order; the response holds
// one result per operation.
//
//	{
//	  "requests": [
//	    {"path": "/wc/store/v1/cart/remove-item", "method": "POST", "body": {"key": "ab12"}},
//	    {"path": "/wc/store/v1/cart/update-item", "method": "POST", "body": {"key": "cd34", "quantity": 3}},
//	    {"path": "/wc/store/v1/cart/add-item", "method": "POST", "body": {"id": 123, "quantity": 1}}
//	  ]
//	}
//
// =============================================================================

const (
	pathAddItem    = "/wc/store/v1/cart/add-item"
	pathUpdateItem = "/wc/store/v1/cart/update-item"
	pathRemoveItem = "/wc/store/v1/cart/remove-item"
)

// BatchBuilder constructs batch requests for the Store API.
type BatchBuilder struct {
	operations []WooBatchOperation
}

// NewBatch creates a new batch builder.
func NewBatch() *BatchBuilder {
	return &BatchBuilder{
		operations: make([]WooBatchOperation, 0),
	}
}

func (b *BatchBuilder) push(path string, body any) *BatchBuilder {
	bodyJSON, _ := json.Marshal(body)
	b.operations = append(b.operations, WooBatchOperation{
		Path:   path,
		Method: http.MethodPost,
		Body:   bodyJSON,
	})
	return b
}

// AddItem adds qty units of a product or variation.
func (b *BatchBuilder) AddItem(id, quantity int) *BatchBuilder {
	return b.push(pathAddItem, map[string]int{
		"id":       id,
		"quantity": quantity,
	})
}

// UpdateItemQuantity sets the quantity of an existing cart item.
func (b *BatchBuilder) UpdateItemQuantity(cartItemKey string, quantity int) *BatchBuilder {
	if cartItemKey == "" {
		return b
	}
	return b.push(pathUpdateItem, map[string]any{
		"key":      cartItemKey,
		"quantity": quantity,
	})
}

// RemoveItem removes a cart item by its key.
func (b *BatchBuilder) RemoveItem(cartItemKey string) *BatchBuilder {
	if cartItemKey == "" {
		return b
	}
	return b.push(pathRemoveItem, map[string]string{"key": cartItemKey})
}

// Build returns the batch request ready for execution.
// Returns nil if no operations were added.
func (b *BatchBuilder) Build() *WooBatchRequest {
	if len(b.operations) == 0 {
		return nil
	}
	return &WooBatchRequest{
		Requests: b.operations,
	}
}

// HasOperations returns true if any operations have been added.
func (b *BatchBuilder) HasOperations() bool {
	return len(b.operations) > 0
}

// OperationCount returns the number of operations in the batch.
func (b *BatchBuilder) OperationCount() int {
	return len(b.operations)
}

// InjectHeaders adds the given headers to all operations in the batch.
// The batch endpoint does not propagate parent headers to sub-operations,
// so Cart-Token and Nonce must be set on each one.
func (b *WooBatchRequest) InjectHeaders(headers map[string]string) {
	for i := range b.Requests {
		if b.Requests[i].Headers == nil {
			b.Requests[i].Headers = make(map[string]string)
		}
		for k, v := range headers {
			b.Requests[i].Headers[k] = v
		}
	}
}
