package inbox

import "github.com/corvidlabs/inboxcore/internal/nostrtypes"

// giftWrapFilter builds the subscription for every
// GiftWrap addressed to v, via the ephemeral p-tag NIP-59 requires on
// the outer event.
func giftWrapFilter(viewer nostrtypes.PubKey, since *nostrtypes.Timestamp) nostrtypes.Filter {
	return nostrtypes.Filter{
		Kinds: []nostrtypes.Kind{nostrtypes.KindGiftWrap},
		TagP: []nostrtypes.PubKey{viewer},
		Since: since,
	}
}

// mentionsFilter builds the subscription for posts,
// reposts, comments and deletions that p-tag the viewer, delivered on
// the viewer's own inbox relays.
func mentionsFilter(viewer nostrtypes.PubKey, since *nostrtypes.Timestamp) nostrtypes.Filter {
	return nostrtypes.Filter{
		Kinds: []nostrtypes.Kind{
			nostrtypes.KindShortTextNote,
			nostrtypes.KindRepost,
			nostrtypes.KindComment,
			nostrtypes.KindEventDeletion,
		},
		TagP: []nostrtypes.PubKey{viewer},
		Since: since,
	}
}

// profilesFilter builds the subscription for identity
// metadata for a set of authors.
func profilesFilter(pks []nostrtypes.PubKey, since *nostrtypes.Timestamp) nostrtypes.Filter {
	return nostrtypes.Filter{
		Authors: pks,
		Kinds: []nostrtypes.Kind{
			nostrtypes.KindMetadata,
			nostrtypes.KindFollowList,
			nostrtypes.KindRelayListMetadata,
			nostrtypes.KindPreferredDMRelays,
		},
		Since: since,
	}
}

// userPostsFilter builds the subscription for the
// authored content of a set of followed identities.
func userPostsFilter(pks []nostrtypes.PubKey, since *nostrtypes.Timestamp) nostrtypes.Filter {
	return nostrtypes.Filter{
		Authors: pks,
		Kinds: []nostrtypes.Kind{
			nostrtypes.KindShortTextNote,
			nostrtypes.KindRepost,
			nostrtypes.KindEventDeletion,
		},
		Since: since,
	}
}
