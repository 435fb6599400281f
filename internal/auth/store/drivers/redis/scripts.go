package redis

import "github.com/redis/go-redis/v9"

// Key layout, relative to the configured prefix:
//
//	session:<id>       hash of session fields
//	session:<id>:used  list of rotated refresh token fingerprints, oldest first
//	shop:<shopID>      id of the shop's live session
//
// All three share the session's absolute expiry.

// KEYS[1] shop index
// ARGV prefix, id, shop_id, algorithm, public_key, private_key,
//
//	refresh_token_hash, expires_at, created_at, updated_at, mode
const saveSessionScript = `
local prefix = ARGV[1]
local old = redis.call("GET", KEYS[1])
if old then
  local old_key = prefix .. "session:" .. old
  if ARGV[11] == "create" and redis.call("EXISTS", old_key) == 1 then
    return 0
  end
  redis.call("DEL", old_key, old_key .. ":used")
end

local key = prefix .. "session:" .. ARGV[2]
redis.call("DEL", key, key .. ":used")
redis.call("HSET", key,
  "id", ARGV[2],
  "shop_id", ARGV[3],
  "algorithm", ARGV[4],
  "public_key", ARGV[5],
  "private_key", ARGV[6],
  "refresh_token_hash", ARGV[7],
  "expires_at", ARGV[8],
  "created_at", ARGV[9],
  "updated_at", ARGV[10])
redis.call("PEXPIREAT", key, ARGV[8])
redis.call("SET", KEYS[1], ARGV[2])
redis.call("PEXPIREAT", KEYS[1], ARGV[8])
return 1
`

// KEYS[1] session, KEYS[2] used list
// ARGV old hash, new hash, expires_at, updated_at, prefix
const rotateRefreshScript = `
local current = redis.call("HGET", KEYS[1], "refresh_token_hash")
if not current or current ~= ARGV[1] then
  return 0
end

redis.call("HSET", KEYS[1], "refresh_token_hash", ARGV[2], "expires_at", ARGV[3], "updated_at", ARGV[4])
redis.call("RPUSH", KEYS[2], ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
redis.call("PEXPIREAT", KEYS[2], ARGV[3])

local shop = redis.call("HGET", KEYS[1], "shop_id")
if shop then
  redis.call("PEXPIREAT", ARGV[5] .. "shop:" .. shop, ARGV[3])
end
return 1
`

// KEYS[1] session, KEYS[2] used list
// ARGV prefix, id
const deleteSessionScript = `
local shop = redis.call("HGET", KEYS[1], "shop_id")
redis.call("DEL", KEYS[2])
if not shop then
  return 0
end

redis.call("DEL", KEYS[1])
local index = ARGV[1] .. "shop:" .. shop
if redis.call("GET", index) == ARGV[2] then
  redis.call("DEL", index)
end
return 1
`

// KEYS[1] shop index
// ARGV prefix
const deleteShopSessionsScript = `
local id = redis.call("GET", KEYS[1])
if not id then
  return 0
end

redis.call("DEL", KEYS[1])
local key = ARGV[1] .. "session:" .. id
local n = redis.call("DEL", key)
redis.call("DEL", key .. ":used")
return n
`

var (
	saveSessionLua        = redis.NewScript(saveSessionScript)
	rotateRefreshLua      = redis.NewScript(rotateRefreshScript)
	deleteSessionLua      = redis.NewScript(deleteSessionScript)
	deleteShopSessionsLua = redis.NewScript(deleteShopSessionsScript)
)
