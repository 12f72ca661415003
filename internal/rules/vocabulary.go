// Package rules loads compliance rules from a triple-based rule store and evaluates
// therapy documents against them.
//
// Rule files are YAML documents holding a prefix table and a list of
// [subject, predicate, object] triples over a fixed vocabulary:
//
//	prefixes:
//	  ex: "http://example.com/speech#"
//	  r: "http://example.com/speech/rules#"
//	triples:
//	  - [r:MissingSignature, a, ex:ComplianceRule]
//	  - [r:MissingSignature, ex:hasIssueTitle, "Provider signature/date possibly missing"]
//	  - [r:MissingSignature, ex:hasDiscipline, pt]
//	  - [r:MissingSignature, ex:hasNegativeKeywords, r:SignatureTerms]
//	  - [r:SignatureTerms, ex:hasKeyword, signature]
//
// Keyword sets are separate nodes linked from the rule; each carries hasKeyword literals.
// A rule with no positive keywords fires when none of its negative keywords occur (required
// presence); otherwise it fires on any positive keyword unless a negative keyword occurs.
package rules

// Namespace is the vocabulary namespace for rule predicates and classes.
const Namespace = "http://example.com/speech#"

// rdfType is the typing predicate; "a" is accepted as shorthand in predicate position.
const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// Vocabulary terms.
const (
	ClassComplianceRule = Namespace + "ComplianceRule"

	PredSeverity         = Namespace + "hasSeverity"
	PredStrictSeverity   = Namespace + "hasStrictSeverity"
	PredIssueTitle       = Namespace + "hasIssueTitle"
	PredIssueDetail      = Namespace + "hasIssueDetail"
	PredIssueCategory    = Namespace + "hasIssueCategory"
	PredDiscipline       = Namespace + "hasDiscipline"
	PredDocumentType     = Namespace + "hasDocumentType"
	PredSuggestion       = Namespace + "hasSuggestion"
	PredFinancialImpact  = Namespace + "hasFinancialImpact"
	PredPositiveKeywords = Namespace + "hasPositiveKeywords"
	PredNegativeKeywords = Namespace + "hasNegativeKeywords"
	PredKeyword          = Namespace + "hasKeyword"
)

// defaultSeverity applies when a rule does not state one.
const defaultSeverity = "finding"

// builtinPrefixes are available in every rule file.
var builtinPrefixes = map[string]string{
	"rdf": "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
}
