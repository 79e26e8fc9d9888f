/*
Package network allocates host ports for workload leases and forwards
traffic from the allocated host port to the workload's private IP.

Allocator implements the bind-probe algorithm: probe
candidates in a pseudo-random order over the configured range, commit
under an exclusive lock with a randomized sub-10ms delay to narrow the
TOCTOU window between two concurrent allocations, and fall back to a
bypass scan of the whole range if pseudo-random probing exhausts itself
without success.

Forwarder sets up the host-port → container-IP iptables DNAT rule once a
workload is running, the way a container backend exposes its guest's
sshd port on the host.
*/
package network
