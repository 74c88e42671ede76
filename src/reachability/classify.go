package reachability

// Classify maps a flag snapshot to a Status. It has no state and no side
// effects beyond calling lookup, which is consulted only for cellular paths
// on a mobile device. A nil lookup behaves like one that reports RadioNone.
//
// Rules, first match wins:
//  1. not Reachable -> NotReachable
//  2. ConnectionRequired and TransientConnection both set -> NotReachable
//  3. not IsCellular, or any path on a device that is not mobile -> WiFi
//  4. cellular on a mobile device -> generation of the radio technology,
//     Unknown if it is not recognised
//
// A host that is not mobile has no radio to report on, so a usable path
// reads as WiFi even when the facility marks it cellular.
func Classify(flags FlagSet, mobileDevice bool, lookup RadioLookup) Status {
	if !flags.Contains(Reachable) {
		return NotReachable
	}

	// A transient link that still has to be brought up is not usable, even
	// though the route exists. Either bit alone is fine.
	if flags.Contains(ConnectionRequired | TransientConnection) {
		return NotReachable
	}

	if mobileDevice && flags.Contains(IsCellular) {
		return cellularGeneration(lookup)
	}

	return WiFi
}

func cellularGeneration(lookup RadioLookup) Status {
	tech := RadioNone
	if lookup != nil {
		tech = lookup.CurrentRadioTechnology()
	}

	switch tech {
	case RadioGPRS, RadioEdge, RadioCDMA1x:
		return Cellular2G
	case RadioWCDMA, RadioHSDPA, RadioHSUPA,
		RadioCDMAEVDORev0, RadioCDMAEVDORevA, RadioCDMAEVDORevB, RadioEHRPD:
		return Cellular3G
	case RadioLTE:
		return Cellular4G
	default:
		return Unknown
	}
}
