package sqlinline

const QCreateJobQueueTable = `--sql 671657b5-f09a-4a2d-8a3e-677ff462362f
create table if not exists %[1]s (
    id bigserial primary key,
    job_id text not null,
    payload jsonb not null,
    visible_after timestamptz not null default now(),
    deliveries integer not null default 0,
    created_at timestamptz not null default now()
);
`

const QCreateJobQueueIndex = `--sql 265edd0b-c121-4b00-8ab0-f36c3f91e20a
create index if not exists %[2]s on %[1]s (visible_after, id);
`

const QEnqueueJobMessage = `--sql c43cbffa-a526-4034-af6e-b05e306f6934
insert into %[1]s (job_id, payload)
values ($1::text, $2::jsonb)
returning id;
`

// QClaimJobMessage hides the oldest visible message for $1 seconds and hands it out.
const QClaimJobMessage = `--sql b3f24b6d-0fad-433a-b148-285f8464c1a9
with next_message as (
    select id
    from %[1]s
    where visible_after <= now()
    order by id asc
    for update skip locked
    limit 1
)
update %[1]s q
set visible_after = now() + make_interval(secs => $1::double precision),
    deliveries = q.deliveries + 1
from next_message
where q.id = next_message.id
returning q.id, q.job_id, q.payload, q.deliveries;
`

const QExtendJobMessage = `--sql fea8ad82-5294-4165-bc15-cccc540b5472
update %[1]s
set visible_after = now() + make_interval(secs => $2::double precision)
where id = $1::bigint;
`

const QAckJobMessage = `--sql 0aa802ea-14c6-4f5b-85ff-9244fef557ee
delete from %[1]s
where id = $1::bigint;
`

const QReleaseJobMessage = `--sql 4aad745d-5610-441d-a5cc-63b9b9d87e01
update %[1]s
set visible_after = now()
where id = $1::bigint;
`
