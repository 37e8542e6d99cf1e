package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var client = http.Client{Timeout: 10 * time.Second}

// errorResponse is the form the node uses to report a failed request.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusError is returned when the node answers with a failure status.
type statusError struct {
	Code int
	Msg  string
}

func (se *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", se.Code, se.Msg)
}

// send issues the request against the node's public API and decodes the
// response into dataRecv.
func send(method string, path string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, nodeURL+path, body)
	if err != nil {
		return err
	}
	if dataSend != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil

	case resp.StatusCode != http.StatusOK:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return &statusError{Code: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}
		}
		if len(er.Fields) > 0 {
			return &statusError{Code: resp.StatusCode, Msg: fmt.Sprintf("%s: %v", er.Error, er.Fields)}
		}
		return &statusError{Code: resp.StatusCode, Msg: er.Error}
	}

	if dataRecv != nil {
		return json.NewDecoder(resp.Body).Decode(dataRecv)
	}

	return nil
}
