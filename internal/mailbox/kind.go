package mailbox

// Kind tags a message with its purpose. The wire format is a free-form string; each role
// accepts a closed set of kinds (see KindSet) and archives anything else untouched.
type Kind string

const (
	KindMessage        Kind = "message"
	KindBossPlan       Kind = "boss_plan"
	KindImplRequest    Kind = "impl_request"
	KindWorkerRequest  Kind = "worker_request"
	KindImplResult     Kind = "impl_result"
	KindReviewResult   Kind = "review_result"
	KindManagerReport  Kind = "manager_report"
	KindShare          Kind = "share"
	KindAssistRequest  Kind = "assist_request"
	KindAssistResponse Kind = "assist_response"
	KindVoteRequest    Kind = "vote_request"
)

// KindSet is the closed set of kinds a consumer recognizes.
type KindSet map[Kind]struct{}

// Kinds builds a KindSet.
func Kinds(ks ...Kind) KindSet {
	s := make(KindSet, len(ks))
	for _, k := range ks {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether k is recognized.
func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}
