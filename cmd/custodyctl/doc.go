/*
custodyctl administers a custody deployment.

It opens the same registries, credential vault and ledger as custody-server
and takes the same backend flags.

	custodyctl operator import --account-id 0.0.1234 --private-key "$KEY" --registry-uri bolt:///var/lib/custody/registry.db
	custodyctl token create --symbol CRW --decimals 2 --supply 1000000000
	custodyctl wallet reconcile --user-id 6f1c...
	custodyctl escrow split --identity-file master.age --threshold 2 --shares 3
	custodyctl escrow combine --out master.age < shares.txt
*/
package main
