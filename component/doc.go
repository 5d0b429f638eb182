// Package component defines lifecycle-managed parts of a session and a
// registry that starts them in order and stops them in reverse.
//
//   - Component: Start, Stop and Health
//   - Describable: optional self-description for status output
package component
