package publisher

import "github.com/redis/go-redis/v9"

// publishScript is the atomic publish transaction. KEYS holds record keys of
// the form prefix:strategy:symbol:YYYYMMDDHHMMSS; ARGV is [overwrite,
// update_time, weight1, price1, ref1, weight2, ...]. Keys are processed in
// submission order. Per key, non-overwrite mode accepts only when no last
// pointer exists or the weight moved by more than 1e-5 against it; an
// accepted key updates the index, the record, the last pointer and the
// symbol directory, then broadcasts key:weight:price:ref on the symbol's
// channel. Returns the accepted count.
var publishScript = redis.NewScript(`
local overwrite = ARGV[1]
local update_time = ARGV[2]
local accepted = 0
for i = 1, #KEYS do
    local key = KEYS[i]
    local weight = ARGV[3 * i]
    local price = ARGV[3 * i + 1]
    local ref = ARGV[3 * i + 2]

    local parts = {}
    key:gsub('[^:]+', function(s) table.insert(parts, s) end)
    local prefix, strategy, symbol, stamp = parts[1], parts[2], parts[3], parts[4]
    local model_key = prefix .. ':' .. strategy .. ':' .. symbol

    local accept = true
    if overwrite == '0' then
        local last = redis.call('HGET', model_key .. ':LAST', 'weight')
        if last and math.abs(tonumber(weight) - tonumber(last)) <= 0.00001 then
            accept = false
        end
    end

    if accept then
        local dt = string.sub(stamp, 1, 4) .. '-' .. string.sub(stamp, 5, 6) .. '-' ..
            string.sub(stamp, 7, 8) .. ' ' .. string.sub(stamp, 9, 10) .. ':' ..
            string.sub(stamp, 11, 12) .. ':' .. string.sub(stamp, 13, 14)
        redis.call('ZADD', model_key, tonumber(stamp), key)
        redis.call('HSET', key, 'symbol', symbol, 'weight', weight, 'dt', dt,
            'update_time', update_time, 'price', price, 'ref', ref)
        redis.call('HSET', model_key .. ':LAST', 'symbol', symbol, 'weight', weight, 'dt', dt,
            'update_time', update_time, 'price', price, 'ref', ref)
        redis.call('SADD', prefix .. ':' .. strategy .. ':Symbols', symbol)
        accepted = accepted + 1
        redis.call('PUBLISH', 'PUBSUB:' .. model_key, key .. ':' .. weight .. ':' .. price .. ':' .. ref)
    end
end
return accepted
`)
