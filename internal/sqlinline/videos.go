package sqlinline

const QCreateVideoJobsTable = `--sql 75415a9e-8df3-4b21-8212-22fa9f96743d
create table if not exists %[1]s (
    id text primary key,
    status text not null check (status in ('queued', 'processing', 'complete', 'error')),
    video_url text,
    error_message text,
    created_at timestamptz not null,
    started_at timestamptz,
    finished_at timestamptz,
    updated_at timestamptz not null default now()
);
`

const QInsertVideoJob = `--sql 522162b0-c6f5-412b-83bc-a70057f205c0
insert into %[1]s (id, status, created_at, updated_at)
values ($1::text, $2::text, $3::timestamptz, now())
on conflict (id) do nothing
returning id;
`

const QSelectVideoJob = `--sql f9674bc2-0f60-45e9-ba3f-a8774367aa82
select id,
       status,
       coalesce(video_url, ''),
       coalesce(error_message, ''),
       created_at,
       started_at,
       finished_at
from %[1]s
where id = $1::text;
`

// QTransitionVideoJob moves a job to $2 only when its current status is in $6.
// started_at keeps its first value across redeliveries.
const QTransitionVideoJob = `--sql 40da6db8-20fa-429b-bf43-0c9ba25ec767
update %[1]s
set status = $2::text,
    started_at = case when $2::text = 'processing' then coalesce(started_at, $5::timestamptz) else started_at end,
    finished_at = case when $2::text in ('complete', 'error') then $5::timestamptz else finished_at end,
    video_url = case when $2::text = 'complete' then $3::text else null end,
    error_message = case when $2::text = 'error' then $4::text else null end,
    updated_at = now()
where id = $1::text
  and status = any($6::text[])
returning id;
`

const QSelectVideoJobStatus = `--sql 8aedb48e-2060-48a4-83e1-e47f594acc34
select status
from %[1]s
where id = $1::text;
`
