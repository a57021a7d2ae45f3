// Package termmap holds a glossary of fixed term translations, such as
// product names in a course, that captions must translate consistently.
package termmap

// TermMap maps source language terms to target language terms.
type TermMap map[string]string
