// Package await resolves a set of launched workers into those that reached a
// desired state and those that did not. It polls the worker listing at a fixed
// interval until every worker is resolved or a deadline passes; workers still
// unresolved at the deadline are reported as failures with their last observed
// descriptor.
package await
