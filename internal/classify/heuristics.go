package classify

import (
	"fmt"

	"github.com/raidward/raidward/internal/event"
	"github.com/raidward/raidward/internal/state"
	"github.com/raidward/raidward/internal/textsig"
)

// Heuristic names, used for per-guild disable lists and verdict reasons.
const (
	HeuristicJoinBurst     = "join_burst"
	HeuristicNewAccount    = "new_account"
	HeuristicMessageRate   = "message_rate"
	HeuristicInviteLink    = "invite_link"
	HeuristicMassMention   = "mass_mention"
	HeuristicBannedPhrase  = "banned_phrase"
	HeuristicKnownRaider   = "known_raider"
	HeuristicPriorOffenses = "prior_offenses"
)

// Score weights. The suspicious cutoff defaults to 1.0, so a single firing
// heuristic contributing >= 1.0 lands at least Suspicious on defaults.
const (
	burstExcessWeight   = 2.0
	newAccountCompound  = 2.0
	rateExcessWeight    = 0.2
	rateContributionCap = 2.5
	signalBase          = 1.0
	signalRateEscalate  = 1.5
	knownRaiderWeight   = 2.0
	priorOffenseWeight  = 0.5
	priorOffenseCap     = 1.5
)

type input struct {
	ev   *event.Event
	snap state.Snapshot
	sig  *textsig.Signals
}

type contribution struct {
	score  float64
	reason string
	// authoritative contributions confirm intent on their own: the verdict
	// is Hostile regardless of the summed score.
	authoritative bool
}

type heuristic struct {
	name string
	eval func(c *Classifier, in input) *contribution
}

// The heuristic set is a flat strategy list with a uniform contribution
// contract, so guilds can toggle entries without the decision engine
// knowing which heuristics exist.
var heuristics = []heuristic{
	{HeuristicJoinBurst, evalJoinBurst},
	{HeuristicNewAccount, evalNewAccount},
	{HeuristicMessageRate, evalMessageRate},
	{HeuristicInviteLink, evalInviteLink},
	{HeuristicMassMention, evalMassMention},
	{HeuristicBannedPhrase, evalBannedPhrase},
	{HeuristicKnownRaider, evalKnownRaider},
	{HeuristicPriorOffenses, evalPriorOffenses},
}

func evalJoinBurst(_ *Classifier, in input) *contribution {
	if in.ev.Kind != event.KindMemberJoin {
		return nil
	}
	ratio := in.snap.BurstRatio
	if ratio < 1 {
		return nil
	}
	return &contribution{
		score:  signalBase + (ratio-1)*burstExcessWeight,
		reason: fmt.Sprintf("%s(ratio=%.2f)", HeuristicJoinBurst, ratio),
	}
}

// evalNewAccount compounds with the join burst: a young account joining
// during a burst is the actual raid signal, so the contribution multiplies
// the burst excess instead of adding a constant.
func evalNewAccount(_ *Classifier, in input) *contribution {
	if in.ev.Kind != event.KindMemberJoin || in.ev.Join == nil {
		return nil
	}
	minAge := in.snap.Config.MinAccountAge
	if minAge <= 0 || in.ev.Join.AccountAge >= minAge {
		return nil
	}
	if in.snap.BurstRatio < 1 {
		// a young account joining quietly is not a raid signal by itself
		return nil
	}
	youth := 1 - float64(in.ev.Join.AccountAge)/float64(minAge)
	burst := signalBase + (in.snap.BurstRatio-1)*burstExcessWeight
	return &contribution{
		score:  burst * newAccountCompound * youth,
		reason: fmt.Sprintf("%s(age=%s)", HeuristicNewAccount, in.ev.Join.AccountAge),
	}
}

func evalMessageRate(_ *Classifier, in input) *contribution {
	if in.ev.Kind != event.KindMessageCreate {
		return nil
	}
	threshold := in.snap.Config.MessageRateThreshold
	if in.snap.MessageCount <= threshold {
		return nil
	}
	score := signalBase + float64(in.snap.MessageCount-threshold)*rateExcessWeight
	if score > rateContributionCap {
		score = rateContributionCap
	}
	return &contribution{
		score:  score,
		reason: fmt.Sprintf("%s(count=%d)", HeuristicMessageRate, in.snap.MessageCount),
	}
}

func evalInviteLink(_ *Classifier, in input) *contribution {
	if in.ev.Kind != event.KindMessageCreate || in.sig == nil || !in.sig.HasInviteLink {
		return nil
	}
	score := signalBase
	if in.snap.MessageCount > in.snap.Config.MessageRateThreshold {
		// invite spam at high rate escalates toward Hostile
		score += signalRateEscalate
	}
	return &contribution{score: score, reason: HeuristicInviteLink}
}

func evalMassMention(_ *Classifier, in input) *contribution {
	if in.ev.Kind != event.KindMessageCreate || in.sig == nil {
		return nil
	}
	mentions := in.sig.MentionCount
	if in.ev.Message != nil && in.ev.Message.MentionCount > mentions {
		mentions = in.ev.Message.MentionCount
	}
	everyone := in.sig.MentionEveryone || (in.ev.Message != nil && in.ev.Message.MentionEveryone)
	if mentions <= in.snap.Config.MassMentionCap && !everyone {
		return nil
	}
	score := signalBase
	if in.snap.MessageCount > in.snap.Config.MessageRateThreshold {
		score += signalRateEscalate
	}
	return &contribution{
		score:  score,
		reason: fmt.Sprintf("%s(count=%d)", HeuristicMassMention, mentions),
	}
}

// evalBannedPhrase is authoritative: an exact match after confusable
// folding confirms intent unambiguously, regardless of total score.
func evalBannedPhrase(c *Classifier, in input) *contribution {
	if in.ev.Kind != event.KindMessageCreate || in.sig == nil {
		return nil
	}
	phrases := c.foldedPhrases(in.snap.Config.BannedPhrases)
	for i, folded := range phrases {
		if !textsig.ContainsPhrase(in.sig.Folded, folded) {
			continue
		}
		reason := fmt.Sprintf("%s(%q)", HeuristicBannedPhrase, in.snap.Config.BannedPhrases[i])
		if !in.snap.Config.FailClosedPhrases {
			return &contribution{score: in.snap.Config.SuspiciousCutoff, reason: reason}
		}
		return &contribution{
			score:         in.snap.Config.HostileCutoff,
			reason:        reason,
			authoritative: true,
		}
	}
	return nil
}

func evalKnownRaider(c *Classifier, in input) *contribution {
	if c.intel == nil || in.ev.Kind != event.KindMemberJoin {
		return nil
	}
	if !c.intel.Known(in.ev.UserID()) {
		return nil
	}
	return &contribution{score: knownRaiderWeight, reason: HeuristicKnownRaider}
}

func evalPriorOffenses(_ *Classifier, in input) *contribution {
	if in.snap.OffenseScore <= 0 {
		return nil
	}
	score := in.snap.OffenseScore * priorOffenseWeight
	if score > priorOffenseCap {
		score = priorOffenseCap
	}
	return &contribution{
		score:  score,
		reason: fmt.Sprintf("%s(score=%.2f)", HeuristicPriorOffenses, in.snap.OffenseScore),
	}
}
