// Package assertions provides checks for test bodies. Every check records
// an action on the active step, so the report shows what was compared even
// when everything passed.
package assertions
