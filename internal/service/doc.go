// Package service implements the business operations of the task tracker:
// task creation and updates, filtered search with aggregate statistics,
// deletion with dependency-reference pruning, and the status-transition
// rules that enforce the dependency-completion invariant.
package service
