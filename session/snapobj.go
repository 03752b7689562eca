// Per-dialect snapshot object schemas: the fixed int-length each
// built-in NETOBJTYPE occupies on the wire, plus the type id that
// identifies a connected player so the session can enforce the
// single-player-only domain rule of spec.md §4.I.
//
// Grounded on original_source/gamenet/{teeworlds-0.5,teeworlds-0.7,
// ddnet}/src/snap_obj.rs's obj_size functions and NETOBJTYPE constant
// blocks, transcribed verbatim per dialect. The pack carries no
// standalone teeworlds-0.6 crate (0.6 and DDNet share the same object
// layout, DDNet being a strict extension), so Vanilla06 reuses the
// DDNet table; see DESIGN.md.
package session

import (
	"ttnetgo/protocol/dialect"
	"ttnetgo/snapshot"
)

// schema05 transcribes teeworlds-0.5/src/snap_obj.rs's obj_size.
var schema05 = snapshot.FixedSchema{
	1:  10, // PLAYER_INPUT
	2:  6,  // PROJECTILE
	3:  5,  // LASER
	4:  4,  // PICKUP
	5:  4,  // FLAG
	6:  12, // GAME
	7:  15, // CHARACTER_CORE
	8:  22, // CHARACTER
	9:  6,  // PLAYER_INFO
	10: 15, // CLIENT_INFO
	11: 2,  // COMMON
	12: 2,  // EXPLOSION
	13: 2,  // SPAWN
	14: 2,  // HAMMER_HIT
	15: 3,  // DEATH
	16: 3,  // SOUND_GLOBAL
	17: 3,  // SOUND_WORLD
	18: 3,  // DAMAGE_IND
}

const playerInfo05 uint16 = 9

// schemaDDNet transcribes ddnet/src/snap_obj.rs's obj_size; Vanilla06
// shares it (see package doc).
var schemaDDNet = snapshot.FixedSchema{
	1:  10, // PLAYER_INPUT
	2:  6,  // PROJECTILE
	3:  5,  // LASER
	4:  4,  // PICKUP
	5:  3,  // FLAG
	6:  8,  // GAME_INFO
	7:  4,  // GAME_DATA
	8:  15, // CHARACTER_CORE
	9:  22, // CHARACTER
	10: 5,  // PLAYER_INFO
	11: 17, // CLIENT_INFO
	12: 3,  // SPECTATOR_INFO
	13: 2,  // COMMON
	14: 2,  // EXPLOSION
	15: 2,  // SPAWN
	16: 2,  // HAMMER_HIT
	17: 3,  // DEATH
	18: 3,  // SOUND_GLOBAL
	19: 3,  // SOUND_WORLD
	20: 3,  // DAMAGE_IND
}

const playerInfoDDNet uint16 = 10

// schema07 transcribes teeworlds-0.7/src/snap_obj.rs's obj_size.
var schema07 = snapshot.FixedSchema{
	1:  10, // PLAYER_INPUT
	2:  6,  // PROJECTILE
	3:  5,  // LASER
	4:  3,  // PICKUP
	5:  3,  // FLAG
	6:  3,  // GAME_DATA
	7:  2,  // GAME_DATA_TEAM
	8:  4,  // GAME_DATA_FLAG
	9:  15, // CHARACTER_CORE
	10: 22, // CHARACTER
	11: 3,  // PLAYER_INFO
	12: 4,  // SPECTATOR_INFO
	13: 58, // DE_CLIENT_INFO
	14: 5,  // DE_GAME_INFO
	15: 32, // DE_TUNE_PARAMS
	16: 2,  // COMMON
	17: 2,  // EXPLOSION
	18: 2,  // SPAWN
	19: 2,  // HAMMER_HIT
	20: 3,  // DEATH
	21: 3,  // SOUND_WORLD
	22: 7,  // DAMAGE
	23: 1,  // PLAYER_INFO_RACE
	24: 3,  // GAME_DATA_RACE
}

const playerInfo07 uint16 = 11

// snapObjSchema returns the snapshot object schema and the PLAYER_INFO
// type id for d.
func snapObjSchema(d dialect.Dialect) (snapshot.TypeSchema, uint16) {
	switch d {
	case dialect.Vanilla05:
		return schema05, playerInfo05
	case dialect.Vanilla07:
		return schema07, playerInfo07
	default: // Vanilla06, DDNet
		return schemaDDNet, playerInfoDDNet
	}
}
