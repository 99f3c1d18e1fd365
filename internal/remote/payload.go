package remote

import (
	"encoding/json"
	"fmt"
	"strings"
)

type transaction struct {
	Ops []struct {
		Data struct {
			ProjectID    string `json:"projectid"`
			ProjectTrees string `json:"project_trees"`
		} `json:"data"`
	} `json:"ops"`
}

// CreatedID digs the new node id out of a createNodeCustom response. Both
// the transaction and the project trees arrive as JSON encoded strings.
func CreatedID(payload json.RawMessage) (string, error) {
	var envelope struct {
		Results []struct {
			Transaction *string `json:"server_run_operation_transaction_json"`
		} `json:"results"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(envelope.Results) == 0 {
		return "", fmt.Errorf("%w: missing results", ErrMalformedPayload)
	}
	if envelope.Results[0].Transaction == nil {
		return "", fmt.Errorf("%w: missing server_run_operation_transaction_json", ErrMalformedPayload)
	}
	txn, err := decodeTransaction(*envelope.Results[0].Transaction)
	if err != nil {
		return "", err
	}
	var trees []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(txn.Ops[0].Data.ProjectTrees), &trees); err != nil {
		return "", fmt.Errorf("%w: project_trees: %v", ErrMalformedPayload, err)
	}
	if len(trees) == 0 || strings.TrimSpace(trees[0].ID) == "" {
		return "", fmt.Errorf("%w: project_trees has no id", ErrMalformedPayload)
	}
	return trees[0].ID, nil
}

// AffectedID returns the project id of a delete, complete or uncomplete
// response.
func AffectedID(payload json.RawMessage) (string, error) {
	var envelope struct {
		Transaction *string `json:"server_run_operation_transaction_json"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if envelope.Transaction == nil {
		return "", fmt.Errorf("%w: missing server_run_operation_transaction_json", ErrMalformedPayload)
	}
	txn, err := decodeTransaction(*envelope.Transaction)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(txn.Ops[0].Data.ProjectID) == "" {
		return "", fmt.Errorf("%w: missing projectid", ErrMalformedPayload)
	}
	return txn.Ops[0].Data.ProjectID, nil
}

// EditedID returns the id echoed by editNode.
func EditedID(payload json.RawMessage) (string, error) {
	var envelope struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if envelope.ID == nil || strings.TrimSpace(*envelope.ID) == "" {
		return "", fmt.Errorf("%w: missing id", ErrMalformedPayload)
	}
	return *envelope.ID, nil
}

func decodeTransaction(raw string) (transaction, error) {
	var txn transaction
	if err := json.Unmarshal([]byte(raw), &txn); err != nil {
		return transaction{}, fmt.Errorf("%w: transaction: %v", ErrMalformedPayload, err)
	}
	if len(txn.Ops) == 0 {
		return transaction{}, fmt.Errorf("%w: transaction has no ops", ErrMalformedPayload)
	}
	return txn, nil
}
