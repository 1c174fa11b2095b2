// fingerprint.go: Submission fingerprints used for duplicate engine detection
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"github.com/google/uuid"
)

// NewProbeQuery returns a fresh random search term. One probe is generated per
// comparison pass and shared by every engine in it, because engines embed the
// query in their URIs.
func NewProbeQuery() string {
	return uuid.NewString()
}

// Fingerprint asks engine for the submission it would send for query and
// reduces it to a comparable (URI, body) pair.
func Fingerprint(engine Engine, query string) (SubmissionFingerprint, error) {
	submission, err := engine.Submission(query)
	if err != nil {
		return SubmissionFingerprint{}, NewSubmissionError(engine.Name(), err)
	}

	body, hasBody, err := DrainStream(submission.PostData)
	if err != nil {
		return SubmissionFingerprint{}, err
	}

	return SubmissionFingerprint{
		URI:     submission.URI,
		Body:    body,
		HasBody: hasBody,
	}, nil
}
