package catalog

// Tier is a privilege level. Values are thresholds compared with < and >,
// not a dense enum; the gap leaves room for intermediate tiers.
type Tier int

const (
	TierPublic     Tier = 0
	TierPrivateKey Tier = 3
	TierAdmin      Tier = 4
)

func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return "admin"
	case TierPrivateKey:
		return "private_key"
	default:
		return "public"
	}
}

// Role is an acceptable authentication outcome for an operation. Operations
// declare which roles they accept; the resolver picks the highest tier the
// caller's secret supports.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleView  Role = "view"
)
