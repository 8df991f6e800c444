/*
Package cluster forms a cluster out of freshly installed nodes.

Formation is anchored on a designated primary: verify it answers over
SSH, create the cluster there unless it is already a member, then join
the remaining nodes one at a time over the management link with the
secondary corosync link as fallback, and finally confirm quorum from the
primary's point of view.

The primary is load-bearing, so its failure aborts the run. Member
failures are isolated: the run continues and reports which nodes made it
in. Every step checks current membership first, which makes a re-run
after partial failure safe.
*/
package cluster
