// Package rule defines the applicability metadata of a loadable rule.
//
// A [Rule] never carries document content. It names the signals that make it
// relevant (file types, declared dependencies, request keywords), the weight
// each signal contributes, an optional CEL guard, and the rules it depends on.
package rule
