/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operation

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
	"github.com/merosign/merosign/pkg/restapi/messages"
	"github.com/merosign/merosign/pkg/result"
)

const contentTypeJSON = "application/json"

func readBody(rw http.ResponseWriter, req *http.Request, operation string) ([]byte, bool) {
	body, err := ioutil.ReadAll(io.LimitReader(req.Body, maxRequestBodySize+1))
	if err != nil {
		logger.Errorf(messages.ReadRequestBodyFailure, operation, err)

		writeText(rw, http.StatusInternalServerError, fmt.Sprintf(messages.ReadRequestBodyFailure, operation, err))

		return nil, false
	}

	if len(body) > maxRequestBodySize {
		writeInvalidRequest(rw, operation, fmt.Errorf(messages.RequestTooLarge, maxRequestBodySize), nil)

		return nil, false
	}

	return body, true
}

// writeInvalidRequest answers a body that does not decode into the operation's input with an InvalidInput error.
func writeInvalidRequest(rw http.ResponseWriter, operation string, errDecode error, body []byte) {
	logger.Warnf(messages.InvalidRequest, operation, errDecode)

	if debugLogLevelEnabled() {
		logger.Debugf(messages.DebugLogEventWithReceivedData,
			fmt.Sprintf(messages.InvalidRequest, operation, errDecode), body)
	}

	writeLedgerError(rw, http.StatusBadRequest, operation,
		ledgererrors.WithDetail(ledgererrors.InvalidInput, fmt.Sprintf("invalid request body: %s", errDecode)))
}

// writeResult writes value as the Ok arm, a ledger error as the Err arm and any other error as a 500.
func writeResult(rw http.ResponseWriter, operation, caller string, value interface{}, err error) {
	if err == nil {
		logger.Debugf(messages.OperationSuccess, operation, caller)

		body, errEncode := result.Encode(value)
		if errEncode != nil {
			logger.Errorf(messages.EncodeResponseFailure, operation, errEncode)
			writeText(rw, http.StatusInternalServerError, fmt.Sprintf(messages.EncodeResponseFailure, operation, errEncode))

			return
		}

		writeJSON(rw, http.StatusOK, body)

		return
	}

	var ledgerErr *ledgererrors.Error
	if errors.As(err, &ledgerErr) {
		logger.Infof(messages.OperationRejected, operation, caller, ledgerErr.Code, ledgerErr)
		writeLedgerError(rw, http.StatusOK, operation, ledgerErr)

		return
	}

	logger.Errorf(messages.OperationFailure, operation, caller, err)

	writeText(rw, http.StatusInternalServerError, fmt.Sprintf(messages.OperationFailure, operation, caller, err))
}

func writeLedgerError(rw http.ResponseWriter, status int, operation string, ledgerErr *ledgererrors.Error) {
	body, err := result.EncodeError(ledgerErr)
	if err != nil {
		logger.Errorf(messages.EncodeResponseFailure, operation, err)
		writeText(rw, http.StatusInternalServerError, fmt.Sprintf(messages.EncodeResponseFailure, operation, err))

		return
	}

	writeJSON(rw, status, body)
}

func writeJSON(rw http.ResponseWriter, status int, body []byte) {
	rw.Header().Set("Content-Type", contentTypeJSON)
	rw.WriteHeader(status)

	if _, err := rw.Write(body); err != nil {
		logger.Errorf(messages.FailWriteResponse, err)
	}
}

func writeText(rw http.ResponseWriter, status int, msg string) {
	rw.WriteHeader(status)

	if _, err := rw.Write([]byte(msg)); err != nil {
		logger.Errorf("%s"+messages.FailWriteResponse, msg, err)
	}
}

func debugLogLevelEnabled() bool {
	return log.GetLevel(logModuleName) >= log.DEBUG
}
