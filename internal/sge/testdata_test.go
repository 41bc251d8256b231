package sge

const runningJobsXML = `<?xml version='1.0'?>
<job_info  xmlns:xsd="http://arc.liv.ac.uk/repos/darcs/sge/source/dist/util/resources/schemas/qstat/qstat.xsd">
  <queue_info>
    <job_list state="running">
      <JB_job_number>1001</JB_job_number>
      <JAT_prio>0.55000</JAT_prio>
      <JB_name>align</JB_name>
      <JB_owner>alice</JB_owner>
      <JB_project>P001</JB_project>
      <JB_department>defaultdepartment</JB_department>
      <state>r</state>
      <cpu_usage>7200.00000</cpu_usage>
      <mem_usage>1024.00000</mem_usage>
      <io_usage>2.00000</io_usage>
      <queue_name>st.q@node-a</queue_name>
      <slots>1</slots>
      <hard_request name="num_proc" resource_contribution="800.000000">8</hard_request>
      <hard_request name="virtual_free" resource_contribution="0.000000">5g</hard_request>
      <hard_req_queue>st.q</hard_req_queue>
      <binding>linear:8</binding>
    </job_list>
    <job_list state="running">
      <JB_job_number>1002</JB_job_number>
      <JAT_prio>0.45000</JAT_prio>
      <JB_name>call</JB_name>
      <JB_owner>alice</JB_owner>
      <state>r</state>
      <cpu_usage>3600.00000</cpu_usage>
      <mem_usage>2048.00000</mem_usage>
      <io_usage>4.00000</io_usage>
      <queue_name>st.q@node-b</queue_name>
      <slots>1</slots>
      <hard_request name="high_priority" resource_contribution="100000.000000">TRUE</hard_request>
      <hard_request name="num_proc" resource_contribution="400.000000">4</hard_request>
      <hard_request name="virtual_free" resource_contribution="0.000000">10.5g</hard_request>
      <binding>NONE</binding>
    </job_list>
    <job_list state="running">
      <JB_job_number>2001</JB_job_number>
      <JAT_prio>0.50000</JAT_prio>
      <JB_owner>bob</JB_owner>
      <state>r</state>
      <cpu_usage>n/a</cpu_usage>
      <queue_name>bc.q@node-c</queue_name>
      <slots>2</slots>
      <hard_request name="num_proc" resource_contribution="0.000000">2</hard_request>
    </job_list>
  </queue_info>
  <job_info>
    <job_list state="pending">
      <JB_job_number>3001</JB_job_number>
      <JAT_prio>0.00000</JAT_prio>
      <JB_owner>carol</JB_owner>
      <state>qw</state>
      <slots>1</slots>
    </job_list>
  </job_info>
</job_info>
`

const singleJobXML = `<?xml version='1.0'?>
<job_info>
  <queue_info>
    <job_list state="running">
      <JB_job_number>1001</JB_job_number>
      <JB_owner>alice</JB_owner>
      <slots>1</slots>
      <cpu_usage>10</cpu_usage>
    </job_list>
  </queue_info>
  <job_info>
  </job_info>
</job_info>
`

const twoJobXML = `<?xml version='1.0'?>
<job_info>
  <queue_info>
    <job_list state="running">
      <JB_job_number>1001</JB_job_number>
      <JB_owner>alice</JB_owner>
      <slots>1</slots>
      <cpu_usage>10</cpu_usage>
    </job_list>
    <job_list state="running">
      <JB_job_number>1002</JB_job_number>
      <JB_owner>bob</JB_owner>
      <slots>1</slots>
      <cpu_usage>20</cpu_usage>
    </job_list>
  </queue_info>
</job_info>
`

const queueListXML = `<?xml version='1.0'?>
<job_info>
  <queue_info>
    <Queue-List>
      <name>st.q@node-a</name>
      <qtype>BIP</qtype>
      <slots_used>4</slots_used>
      <slots_total>24</slots_total>
      <resource name="num_proc" type="hc">20</resource>
      <resource name="virtual_free" type="hc">200.000G</resource>
      <job_list state="running">
        <JB_job_number>1001</JB_job_number>
        <JB_owner>alice</JB_owner>
      </job_list>
    </Queue-List>
  </queue_info>
  <job_info/>
</job_info>
`

const qhostOutput = `HOSTNAME                ARCH         NCPU NSOC NCOR NTHR  LOAD  MEMTOT  MEMUSE  SWAPTO  SWAPUS
----------------------------------------------------------------------------------------------
global                  -               -    -    -    -     -       -       -       -       -
node-a                  lx-amd64       48    2   24   48  3.10  503.8G   20.0G   30.0G    1.0G
node-b                  lx-amd64       24    2   12   24  0.50  251.9G  100.0G   30.0G   11.0G
node-c                  lx-amd64        -    -    -    -     -       -       -       -       -
node-d                  lx-amd64       16    2    8   16  0.10   62.9G    2.0G    8.0G    0.5G
`

const queueResourcesOutput = `queuename                      qtype resv/used/tot. load_avg arch          states
---------------------------------------------------------------------------------
st.q@node-a                    BIP   0/4/24         0.52     lx-amd64      
	hc:num_proc=20
	hc:virtual_free=350.000G
---------------------------------------------------------------------------------
st.q@node-b                    BIP   0/0/24         -NA-     lx-amd64      au
	hc:num_proc=24
---------------------------------------------------------------------------------
st.q@node-c                    BIP   0/2/24         1.02     lx-amd64      
	hc:num_proc=16
	hc:virtual_free=120.5G
`
