/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operation

import "github.com/merosign/merosign/pkg/restapi/models"

// Every endpoint answers with a tagged union: {"Ok": <value>} or {"Err": {"<Discriminant>": <detail or null>}}.
// The models below describe the Ok value of each endpoint.

// genericError model
//
// swagger:response genericError
type genericError struct { // nolint: unused,deadcode
	// in: body
	Err map[string]*string
}

// unitRes model
//
// swagger:response unitRes
type unitRes struct { // nolint: unused,deadcode
	// in: body
	Ok interface{}
}

// boolRes model
//
// swagger:response boolRes
type boolRes struct { // nolint: unused,deadcode
	// in: body
	Ok bool
}

// createContextReq model
//
// swagger:parameters createContextReq
type createContextReq struct { // nolint: unused,deadcode
	// in: header
	Caller string `json:"X-Caller-ID"`
	// in: body
	Request models.CreateContextRequest
}

// addParticipantReq model
//
// swagger:parameters addParticipantReq
type addParticipantReq struct { // nolint: unused,deadcode
	// in: header
	Caller string `json:"X-Caller-ID"`
	// in: body
	Request models.AddParticipantRequest
}

// uploadDocumentReq model
//
// swagger:parameters uploadDocumentReq
type uploadDocumentReq struct { // nolint: unused,deadcode
	// in: header
	Caller string `json:"X-Caller-ID"`
	// in: body
	Request models.UploadDocumentRequest
}

// registerSelfReq model
//
// swagger:parameters registerSelfReq
type registerSelfReq struct { // nolint: unused,deadcode
	// in: header
	Caller string `json:"X-Caller-ID"`
	// in: body
	Request models.RegisterSelfRequest
}

// contextRefReq model
//
// swagger:parameters contextRefReq
type contextRefReq struct { // nolint: unused,deadcode
	// in: body
	Request models.ContextRef
}

// documentRefReq model
//
// swagger:parameters documentRefReq
type documentRefReq struct { // nolint: unused,deadcode
	// in: header
	Caller string `json:"X-Caller-ID"`
	// in: body
	Request models.DocumentRef
}

// userRefReq model
//
// swagger:parameters userRefReq
type userRefReq struct { // nolint: unused,deadcode
	// in: body
	Request models.UserRef
}

// recordFinalHashReq model
//
// swagger:parameters recordFinalHashReq
type recordFinalHashReq struct { // nolint: unused,deadcode
	// in: header
	Caller string `json:"X-Caller-ID"`
	// in: body
	Request models.RecordFinalHashRequest
}

// signDocumentReq model
//
// swagger:parameters signDocumentReq
type signDocumentReq struct { // nolint: unused,deadcode
	// in: header
	Caller string `json:"X-Caller-ID"`
	// in: body
	Request models.SignDocumentRequest
}

// verifyHashReq model
//
// swagger:parameters verifyHashReq
type verifyHashReq struct { // nolint: unused,deadcode
	// in: body
	Request models.VerifyHashRequest
}

// contextRes model
//
// swagger:response contextRes
type contextRes struct { // nolint: unused,deadcode
	// in: body
	Ok models.Context
}

// documentRes model
//
// swagger:response documentRes
type documentRes struct { // nolint: unused,deadcode
	// in: body
	Ok models.Document
}

// documentsRes model
//
// swagger:response documentsRes
type documentsRes struct { // nolint: unused,deadcode
	// in: body
	Ok []models.Document
}

// progressRes model
//
// swagger:response progressRes
type progressRes struct { // nolint: unused,deadcode
	// in: body
	Ok models.SigningProgress
}

// verificationRes model
//
// swagger:response verificationRes
type verificationRes struct { // nolint: unused,deadcode
	// in: body
	Ok models.VerificationStatus
}

// auditRes model
//
// swagger:response auditRes
type auditRes struct { // nolint: unused,deadcode
	// in: body
	Ok []models.AuditEntry
}
